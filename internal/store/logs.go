package store

import (
	"context"
	"fmt"
	"time"
)

// LogRecord is an append-only structured log entry.
type LogRecord struct {
	TS       int64
	Level    string
	Module   string
	Function string
	Message  string
	Context  []byte
}

// WriteLogRecord appends a log record. It never returns an error to a
// logging.RecordSink caller's critical path in practice because the
// logging package swallows this error itself, but the Store still
// reports failures here for callers (e.g. the HTTP logs endpoint reading
// back) that want to know a write failed.
func (s *Store) WriteLogRecord(ts time.Time, level, module, function, message string, context []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO logs (ts, level, module, function, message, context) VALUES (?, ?, ?, ?, ?, ?)`,
		ts.UTC().Unix(), level, module, function, message, string(context))
	if err != nil {
		return fmt.Errorf("store: write log record: %w", err)
	}
	return nil
}

// TailLogs returns the last limit log records, oldest first, clamped to
// [20, 100] per the control surface contract.
func (s *Store) TailLogs(ctx context.Context, limit int) ([]LogRecord, error) {
	if limit < 20 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, level, module, function, message, context FROM logs ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: tail logs: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var r LogRecord
		var ctxStr string
		if err := rows.Scan(&r.TS, &r.Level, &r.Module, &r.Function, &r.Message, &ctxStr); err != nil {
			return nil, fmt.Errorf("store: scan log record: %w", err)
		}
		r.Context = []byte(ctxStr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for display.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
