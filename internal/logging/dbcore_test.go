package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDBCoreWriteForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	core := newDBCore(sink, zapcore.InfoLevel)

	err := core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "db message"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"db message"}, sink.records)
}

func TestDBCoreSwallowsSinkErrors(t *testing.T) {
	sink := &erroringSink{}
	core := newDBCore(sink, zapcore.InfoLevel)

	err := core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "oops"}, nil)
	assert.NoError(t, err)
}

func TestDBCoreCheckRespectsLevelEnabler(t *testing.T) {
	sink := &fakeSink{}
	core := newDBCore(sink, zapcore.ErrorLevel)

	ce := core.Check(zapcore.Entry{Level: zapcore.InfoLevel}, nil)
	assert.Nil(t, ce)
}

type erroringSink struct{}

func (erroringSink) WriteLogRecord(ts time.Time, level, module, function, message string, context []byte) error {
	return assert.AnError
}
