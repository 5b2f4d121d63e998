package handlers

import (
	"net/http"

	"github.com/kiratut/v4/internal/apperrors"
)

type daemonStatusResponse struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Status  string `json:"status"`
}

// DaemonStatus handles GET daemon/status. It first reconciles the process
// registry (rows marked running whose pid is no longer alive are marked
// dead) and then reports the stored row. A row marked stopped is reported
// as stopped even when its pid is alive.
func (d *Deps) DaemonStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := d.Store.CleanupDeadProcesses(r.Context()); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	proc, err := d.Store.GetProcess(r.Context(), d.ProcessName)
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	if proc == nil {
		writeJSON(w, http.StatusOK, daemonStatusResponse{Running: false, Status: "unregistered"})
		return
	}
	writeJSON(w, http.StatusOK, daemonStatusResponse{
		Running: proc.Status == "running",
		PID:     proc.PID,
		Status:  string(proc.Status),
	})
}

// DaemonStart handles POST daemon/start. The control surface itself runs
// in-process with the dispatcher, so "start" here means unfreezing and
// (re)registering the process row; actual process spawn is a CLI concern
// (`hhwatch daemon start --background`).
func (d *Deps) DaemonStart(w http.ResponseWriter, r *http.Request) {
	d.Dispatcher.SetFrozen(false)
	if err := d.Store.RegisterProcess(r.Context(), d.ProcessName, currentPID(), "hhwatch daemon", "", 0); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

// DaemonStop handles POST daemon/stop.
func (d *Deps) DaemonStop(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.KillProcess(r.Context(), d.ProcessName); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.Dispatcher.SetFrozen(true)
	if d.Shutdown != nil {
		go d.Shutdown()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

// DaemonRestart handles POST daemon/restart.
func (d *Deps) DaemonRestart(w http.ResponseWriter, r *http.Request) {
	d.Dispatcher.SetFrozen(true)
	d.Dispatcher.SetFrozen(false)
	if err := d.Store.RegisterProcess(r.Context(), d.ProcessName, currentPID(), "hhwatch daemon", "", 0); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "restarted"})
}
