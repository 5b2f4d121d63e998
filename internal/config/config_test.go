package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TaskDispatcher.MaxWorkers)
	assert.Equal(t, "127.0.0.1", cfg.WebInterface.Host)
	assert.NotNil(t, cfg.Hosts)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_v4.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task_dispatcher":{"max_workers":9}}`), 0o644))

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.TaskDispatcher.MaxWorkers)
	assert.Equal(t, 500, cfg.TaskDispatcher.ChunkSize) // untouched default survives merge
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_v4.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task_dispatcher":{"max_workers":9}}`), 0o644))

	t.Setenv("HHWATCH_TASK_DISPATCHER_MAX_WORKERS", "12")
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.TaskDispatcher.MaxWorkers)
}

func TestLoadExplicitOverridesWinOverEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_v4.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task_dispatcher":{"max_workers":9}}`), 0o644))
	t.Setenv("HHWATCH_TASK_DISPATCHER_MAX_WORKERS", "12")

	cfg, err := Load(context.Background(), path, map[string]any{
		"task_dispatcher": map[string]any{"max_workers": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.TaskDispatcher.MaxWorkers)
}

func TestWriteCreatesBackupOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_v4.json")
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, Write(path, cfg, time.Now()))
	require.NoError(t, Write(path, cfg, time.Now()))

	matches, err := filepath.Glob(path + ".bak.*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_v4.json")
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	cfg.TaskDispatcher.MaxWorkers = 42

	require.NoError(t, Write(path, cfg, time.Now()))

	reloaded, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.TaskDispatcher.MaxWorkers)
}
