// Package app wires the long-running process together: config, logging,
// store, auth registry, fetcher, dispatcher, scheduler, and the control
// surface HTTP server. It is the one place that knows how every
// component is constructed before running it.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/authregistry"
	"github.com/kiratut/v4/internal/config"
	"github.com/kiratut/v4/internal/dispatcher"
	"github.com/kiratut/v4/internal/fetcher"
	"github.com/kiratut/v4/internal/filters"
	"github.com/kiratut/v4/internal/hostsync"
	"github.com/kiratut/v4/internal/jobs"
	"github.com/kiratut/v4/internal/logging"
	"github.com/kiratut/v4/internal/scheduler"
	"github.com/kiratut/v4/internal/server"
	"github.com/kiratut/v4/internal/server/handlers"
	"github.com/kiratut/v4/internal/store"
	"github.com/kiratut/v4/internal/sysmetrics"
)

const (
	authRolesPath = "config/auth_roles.json"
	filtersPath   = "config/filters.json"
	pidFile       = "data/scheduler_daemon.pid"
)

// App holds every constructed component of a running process.
type App struct {
	Config     *config.Config
	ConfigPath string
	Log        *zap.Logger
	Store      *store.Store
	Auth       *authregistry.Registry
	Fetcher    *fetcher.Fetcher
	Filters    *filters.Store
	Dispatcher *dispatcher.Dispatcher
	Scheduler  *scheduler.Scheduler
	Uploader   hostsync.Uploader
	Server     *server.Server
}

// Overrides carries CLI flag overrides applied on top of the loaded
// config. Zero-valued fields are left at the config's own value.
type Overrides struct {
	Workers   int
	ChunkSize int
	Host      string
	Port      int
}

// Bootstrap loads configuration and constructs every component, applying
// any non-zero fields of ov on top of the loaded config.
func Bootstrap(ctx context.Context, configPath string, ov Overrides) (*App, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	if ov.Workers > 0 {
		cfg.TaskDispatcher.MaxWorkers = ov.Workers
	}
	if ov.ChunkSize > 0 {
		cfg.TaskDispatcher.ChunkSize = ov.ChunkSize
	}
	if ov.Host != "" {
		cfg.WebInterface.Host = ov.Host
	}
	if ov.Port > 0 {
		cfg.WebInterface.Port = ov.Port
	}

	st, err := store.Open(ctx, store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.RotationSizeMB,
		MaxBackups: cfg.Logging.RotationBackups,
		Console:    cfg.Logging.Console,
		DBEnabled:  cfg.Logging.DBEnabled,
		Format:     cfg.Logging.Format,
	}, st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: build logger: %w", err)
	}

	auth, err := authregistry.Load(authRolesPath, envCredentialsLookup)
	if err != nil {
		log.Warn("app: auth registry load failed, continuing without rotation", zap.Error(err))
		auth, _ = authregistry.Load("", envCredentialsLookup)
	}

	filterStore, err := filters.NewStore(filtersPath)
	if err != nil {
		return nil, fmt.Errorf("app: load filters: %w", err)
	}

	fetch := fetcher.New(fetcher.Config{
		BaseURL:    cfg.API.BaseURL,
		UserAgent:  cfg.API.UserAgent,
		MaxRetries: cfg.API.MaxRetries,
	}, nil, st, auth)

	disp := dispatcher.New(dispatcher.Config{
		MaxWorkers: cfg.TaskDispatcher.MaxWorkers,
	}, st, log)
	disp.SetFrozen(cfg.TaskDispatcher.Frozen)

	reg := &jobs.Registry{Fetch: fetch, Store: st, Log: log}
	disp.RegisterHandler("load_vacancies", reg.LoadVacancies)
	disp.RegisterHandler("load_employers", reg.LoadEmployers)
	disp.RegisterHandler("cleanup", reg.Cleanup)
	disp.RegisterHandler("process_pipeline", reg.ProcessPipeline)

	var uploader hostsync.Uploader
	if hostCfg, ok := cfg.Hosts["host2"]; ok && hostCfg.Enabled {
		up, err := hostsync.NewS3Uploader(ctx, hostsync.Config{Bucket: hostCfg.Connection})
		if err != nil {
			log.Warn("app: host2 uploader disabled", zap.Error(err))
		} else {
			uploader = up
		}
	}

	disp.RegisterHandler("sync_host2", func(ctx context.Context, task store.Task) ([]byte, error) {
		hostCfg, ok := cfg.Hosts["host2"]
		if !ok || !hostCfg.Enabled || uploader == nil {
			return json.Marshal(map[string]string{"status": "disabled"})
		}
		count, err := hostsync.SyncPending(ctx, st, uploader, time.Now().Unix(), cfg.TaskDispatcher.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("app: sync_host2: %w", err)
		}
		return json.Marshal(map[string]any{"status": "synced", "synced": count})
	})

	disp.RegisterHandler("system_health", func(ctx context.Context, task store.Task) ([]byte, error) {
		sample, alerts, err := sampleSystemHealth(ctx, cfg, st, disp, log)
		if err != nil {
			return nil, fmt.Errorf("app: system_health: %w", err)
		}
		return json.Marshal(map[string]any{"status": "sampled", "sample": sample, "alerts": alerts})
	})

	sched := scheduler.New(disp, st, log)

	deps := &handlers.Deps{
		Store:       st,
		Dispatcher:  disp,
		Scheduler:   sched,
		Filters:     filterStore,
		Uploader:    uploader,
		Log:         log,
		ConfigPath:  configPath,
		ProcessName: "scheduler_daemon",
	}
	srv := server.New(cfg.WebInterface.Host, cfg.WebInterface.Port, deps)

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		Log:        log,
		Store:      st,
		Auth:       auth,
		Fetcher:    fetch,
		Filters:    filterStore,
		Dispatcher: disp,
		Scheduler:  sched,
		Uploader:   uploader,
		Server:     srv,
	}, nil
}

// Run starts the dispatcher, scheduler, system-health sampler, and HTTP
// server concurrently, returning the first error encountered (cancelling
// the shared context so the other flows unwind too).
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	var wg sync.WaitGroup

	spawn := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	spawn(a.Dispatcher.Run)
	spawn(func(ctx context.Context) error { a.Scheduler.Run(ctx); return nil })
	spawn(func(ctx context.Context) error { a.runHealthSampler(ctx); return nil })
	if a.Config.WebInterface.AutoStart {
		spawn(a.Server.Run)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runHealthSampler(ctx context.Context) {
	interval := time.Duration(a.Config.SystemMonitoring.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sampleOnce(ctx)
		}
	}
}

func (a *App) sampleOnce(ctx context.Context) {
	if _, _, err := sampleSystemHealth(ctx, a.Config, a.Store, a.Dispatcher, a.Log); err != nil {
		a.Log.Warn("app: sysmetrics collect", zap.Error(err))
	}
}

// sampleSystemHealth collects one sysmetrics sample, persists it, and logs
// any threshold breaches. It is the single sampling path shared by the
// periodic health-sampler ticker and the on-demand system_health task.
func sampleSystemHealth(ctx context.Context, cfg *config.Config, st *store.Store, disp *dispatcher.Dispatcher, log *zap.Logger) (sysmetrics.Sample, []sysmetrics.Alert, error) {
	sample, err := sysmetrics.Collect(cfg.Database.Path)
	if err != nil {
		return sysmetrics.Sample{}, nil, err
	}

	status := disp.GetStatus()
	if err := st.SaveSystemHealth(ctx, store.SystemHealthSample{
		TS:          time.Now().Unix(),
		CPUPct:      sample.CPUPercent,
		MemPct:      sample.MemPercent,
		DiskPct:     sample.DiskPercent,
		DBSizeMB:    sample.DBSizeMB,
		ActiveTasks: len(status.CurrentTask),
	}); err != nil {
		log.Warn("app: save system health", zap.Error(err))
	}

	thresholds := sysmetrics.Thresholds{
		CPUPercent:  float64(cfg.SystemMonitoring.CPUThreshold),
		MemPercent:  float64(cfg.SystemMonitoring.MemThreshold),
		DiskPercent: float64(cfg.SystemMonitoring.DiskThreshold),
	}
	alerts := sysmetrics.CheckThresholds(sample, thresholds)
	for _, alert := range alerts {
		log.Warn("app: resource threshold exceeded",
			zap.String("metric", alert.Metric),
			zap.Float64("percent", alert.Percent),
			zap.Float64("limit", alert.Limit))
	}
	return sample, alerts, nil
}

// WritePIDFile records the current process in both the pid file and the
// process registry, for cross-restart staleness detection.
func (a *App) WritePIDFile(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return err
	}
	return a.Store.RegisterProcess(ctx, "scheduler_daemon", os.Getpid(), "", a.Config.WebInterface.Host, a.Config.WebInterface.Port)
}

// Close releases the store handle.
func (a *App) Close() error {
	return a.Store.Close()
}

func envCredentialsLookup(providerName string) (string, error) {
	v := os.Getenv("HHWATCH_OAUTH_" + providerName)
	if v == "" {
		return "", fmt.Errorf("app: no credentials for provider %s", providerName)
	}
	return v, nil
}
