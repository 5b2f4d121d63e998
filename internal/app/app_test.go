package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/config"
	"github.com/kiratut/v4/internal/dispatcher"
	"github.com/kiratut/v4/internal/hostsync"
	"github.com/kiratut/v4/internal/scheduler"
	"github.com/kiratut/v4/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := zap.NewNop()
	disp := dispatcher.New(dispatcher.Config{MaxWorkers: 1}, st, log)
	sched := scheduler.New(disp, st, log)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:"},
		SystemMonitoring: config.SystemMonitoringConfig{
			IntervalSec:   0,
			CPUThreshold:  80,
			MemThreshold:  85,
			DiskThreshold: 90,
		},
		WebInterface: config.WebInterfaceConfig{Host: "127.0.0.1", Port: 0},
	}

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Dispatcher: disp,
		Scheduler:  sched,
	}
}

func TestSampleOnceSavesHealthWithoutPanicking(t *testing.T) {
	a := newTestApp(t)
	a.sampleOnce(context.Background())

	sample, err := a.Store.LatestSystemHealth(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sample)
}

func TestSampleSystemHealthReturnsAlertsPastThreshold(t *testing.T) {
	a := newTestApp(t)
	a.Config.SystemMonitoring.CPUThreshold = -1 // guarantees the sampled CPU percent exceeds it

	sample, alerts, err := sampleSystemHealth(context.Background(), a.Config, a.Store, a.Dispatcher, a.Log)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Equal(t, "cpu", alerts[0].Metric)
	_ = sample
}

// The handler closures in the two tests below mirror what Bootstrap
// registers for the system_health and sync_host2 task types (the sync one
// passes a fixed batch size instead of the config's chunk size), letting
// them be exercised without depending on Bootstrap's hardcoded relative
// paths.

func TestSystemHealthHandlerSharesSampleSystemHealthPath(t *testing.T) {
	a := newTestApp(t)

	handler := func(ctx context.Context, task store.Task) ([]byte, error) {
		sample, alerts, err := sampleSystemHealth(ctx, a.Config, a.Store, a.Dispatcher, a.Log)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"status": "sampled", "sample": sample, "alerts": alerts})
	}

	out, err := handler(context.Background(), store.Task{ID: "t1", Type: "system_health"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"status":"sampled"`)

	saved, err := a.Store.LatestSystemHealth(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestSyncHostHandlerNoOpsWhenDisabled(t *testing.T) {
	a := newTestApp(t)
	a.Config.Hosts = map[string]config.HostConfig{"host2": {Enabled: false}}
	var uploader hostsync.Uploader

	handler := func(ctx context.Context, task store.Task) ([]byte, error) {
		hostCfg, ok := a.Config.Hosts["host2"]
		if !ok || !hostCfg.Enabled || uploader == nil {
			return json.Marshal(map[string]string{"status": "disabled"})
		}
		count, err := hostsync.SyncPending(ctx, a.Store, uploader, time.Now().Unix(), 10)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"status": "synced", "synced": count})
	}

	out, err := handler(context.Background(), store.Task{ID: "t1", Type: "sync_host2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"disabled"}`, string(out))
}

func TestRunHealthSamplerStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t)
	a.Config.SystemMonitoring.IntervalSec = 0 // forces the 5-minute fallback, but cancel should still return promptly

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.runHealthSampler(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runHealthSampler did not return after context cancellation")
	}
}

func TestWritePIDFileWritesFileAndRegistersProcess(t *testing.T) {
	a := newTestApp(t)

	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	require.NoError(t, a.WritePIDFile(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "data", "scheduler_daemon.pid"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	proc, err := a.Store.GetProcess(context.Background(), "scheduler_daemon")
	require.NoError(t, err)
	require.NotNil(t, proc)
}

func TestCloseClosesStore(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Close())
}

func TestEnvCredentialsLookupMissing(t *testing.T) {
	_, err := envCredentialsLookup("unset_provider_xyz")
	assert.Error(t, err)
}

func TestEnvCredentialsLookupPresent(t *testing.T) {
	t.Setenv("HHWATCH_OAUTH_demo", "token-value")
	v, err := envCredentialsLookup("demo")
	require.NoError(t, err)
	assert.Equal(t, "token-value", v)
}

func TestRunStopsAllFlowsOnContextCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
