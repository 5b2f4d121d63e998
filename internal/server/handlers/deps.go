// Package handlers implements the control-surface HTTP handlers.
package handlers

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/config"
	"github.com/kiratut/v4/internal/dispatcher"
	"github.com/kiratut/v4/internal/filters"
	"github.com/kiratut/v4/internal/hostsync"
	"github.com/kiratut/v4/internal/scheduler"
	"github.com/kiratut/v4/internal/store"
)

// ProcessRegistry is the subset of Store the daemon handlers need.
type ProcessRegistry interface {
	RegisterProcess(ctx context.Context, name string, pid int, cmdline, host string, port int) error
	GetProcess(ctx context.Context, name string) (*store.ProcessRecord, error)
	KillProcess(ctx context.Context, name string) error
}

// Deps bundles everything the control-surface handlers read or mutate.
// Handlers take this instead of individual globals so server.go can wire
// and test them without package-level state.
type Deps struct {
	Store      *store.Store
	Dispatcher *dispatcher.Dispatcher
	Scheduler  *scheduler.Scheduler
	Filters    *filters.Store
	Uploader   hostsync.Uploader
	Log        *zap.Logger

	ConfigPath  string
	ProcessName string

	// Shutdown, when non-nil, is invoked by the daemon-stop endpoint to
	// trigger a graceful process shutdown. Bootstrap leaves it nil; the
	// endpoint then relies on KillProcess's SIGTERM alone.
	Shutdown func()
}

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}

func currentPID() int {
	return os.Getpid()
}
