// Package server assembles the control-surface HTTP router: a
// chi mux with recovery/logging middleware, the REST endpoints, and a
// WebSocket broadcaster.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/server/handlers"
	"github.com/kiratut/v4/internal/server/middleware"
)

// Server wraps the chi router and the periodic WebSocket broadcaster.
type Server struct {
	host string
	port int
	log  *zap.Logger

	router      chi.Router
	broadcaster *handlers.Broadcaster
	httpServer  *http.Server
}

// New constructs a Server bound to deps. host/port configure ListenAndServe;
// Handler() is independently usable in tests without binding a socket.
func New(host string, port int, deps *handlers.Deps) *Server {
	s := &Server{host: host, port: port, log: deps.Log}
	s.broadcaster = handlers.NewBroadcaster(deps)
	s.router = s.buildRouter(deps)
	return s
}

func (s *Server) buildRouter(d *handlers.Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.AccessLog(d.Log))

	r.Get("/stats", d.Stats)
	r.Get("/tasks", d.Tasks)
	r.Get("/task/{id}", d.Task)
	r.Get("/vacancies/recent", d.VacanciesRecent)

	r.Get("/filters", d.Filters)
	r.Post("/filters/set-active", d.FiltersSetActive)
	r.Post("/filters/toggle-all", d.FiltersToggleAll)
	r.Post("/filters/invert", d.FiltersInvert)
	r.Post("/filters/load-now", d.FiltersLoadNow)

	r.Get("/daemon/status", d.DaemonStatus)
	r.Post("/daemon/start", d.DaemonStart)
	r.Post("/daemon/stop", d.DaemonStop)
	r.Post("/daemon/restart", d.DaemonRestart)

	r.Post("/workers/freeze", d.WorkersFreeze)
	r.Post("/queue/clear", d.QueueClear)

	r.Get("/config/read", d.ConfigRead)
	r.Post("/config/write", d.ConfigWrite)

	r.Get("/schedule/next", d.ScheduleNext)
	r.Get("/logs/app", d.Logs)

	r.Get("/ws", s.broadcaster.ServeWS)

	return r
}

// Handler returns the assembled http.Handler, independent of whether the
// server is bound to a socket.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port reports the configured port.
func (s *Server) Port() int {
	return s.port
}

// Run starts the broadcaster and blocks serving HTTP until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	broadcastCtx, cancelBroadcast := context.WithCancel(ctx)
	defer cancelBroadcast()
	go s.broadcaster.Run(broadcastCtx)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
