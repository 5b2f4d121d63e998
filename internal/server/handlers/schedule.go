package handlers

import (
	"net/http"

	"github.com/kiratut/v4/internal/apperrors"
)

// ScheduleNext handles GET schedule/next, returning HH:MM of the next
// scheduled load across all enabled jobs.
func (d *Deps) ScheduleNext(w http.ResponseWriter, r *http.Request) {
	next := d.Scheduler.NextScheduled()
	if next.IsZero() {
		apperrors.WriteHTTP(w, http.StatusNotFound, "no scheduled jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"next_run_hhmm": next.Format("15:04"),
		"next_run_unix": next.Unix(),
	})
}

// Logs handles GET logs/app?limit=.
func (d *Deps) Logs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	records, err := d.Store.TailLogs(r.Context(), limit)
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": records})
}
