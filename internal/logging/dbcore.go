package logging

import (
	"encoding/json"

	"go.uber.org/zap/zapcore"
)

// dbCore is a zapcore.Core that forwards entries to a RecordSink (the
// Store's logs table). Write errors from the sink are intentionally
// discarded: the logging path must never itself fail a request.
type dbCore struct {
	zapcore.LevelEnabler
	sink RecordSink
}

func newDBCore(sink RecordSink, enab zapcore.LevelEnabler) zapcore.Core {
	return &dbCore{LevelEnabler: enab, sink: sink}
}

func (c *dbCore) With(fields []zapcore.Field) zapcore.Core {
	return &dbCore{LevelEnabler: c.LevelEnabler, sink: c.sink}
}

func (c *dbCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *dbCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	ctxJSON, _ := json.Marshal(enc.Fields)

	module, function := ent.LoggerName, ent.Caller.Function
	// Sink errors are swallowed: logging must never recurse into failure.
	_ = c.sink.WriteLogRecord(ent.Time.UTC(), ent.Level.String(), module, function, ent.Message, ctxJSON)
	return nil
}

func (c *dbCore) Sync() error { return nil }
