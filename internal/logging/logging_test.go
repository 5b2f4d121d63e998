package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	records []string
}

func (f *fakeSink) WriteLogRecord(ts time.Time, level, module, function, message string, context []byte) error {
	f.records = append(f.records, message)
	return nil
}

func TestNewBuildsLoggerWithFileAndConsole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "test.log")

	log, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("hello")
	require.NoError(t, log.Sync())
}

func TestNewRoutesToDBSinkWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "test.log")
	cfg.Console = false
	cfg.DBEnabled = true

	sink := &fakeSink{}
	log, err := New(cfg, sink)
	require.NoError(t, err)

	log.Info("routed message")
	assert.Contains(t, sink.records, "routed message")
}

func TestNewSkipsDBSinkWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "test.log")
	cfg.DBEnabled = false

	sink := &fakeSink{}
	log, err := New(cfg, sink)
	require.NoError(t, err)

	log.Info("not routed")
	assert.Empty(t, sink.records)
}

func TestNewUsesConsoleEncoderFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "test.log")
	cfg.Format = "console"

	log, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestMaxSizeAndBackupsFallBackToDefaults(t *testing.T) {
	assert.Equal(t, 100, maxSizeOr(0, 100))
	assert.Equal(t, 7, maxSizeOr(7, 100))
	assert.Equal(t, 3, maxBackupsOr(-1, 3))
	assert.Equal(t, 5, maxBackupsOr(5, 3))
}
