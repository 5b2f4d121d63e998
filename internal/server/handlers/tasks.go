package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiratut/v4/internal/apperrors"
	"github.com/kiratut/v4/internal/store"
)

type taskView struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	StartedAt  *int64 `json:"started_at,omitempty"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
	Progress   string `json:"progress,omitempty"`
	Result     string `json:"result,omitempty"`
}

func toTaskView(t store.Task) taskView {
	return taskView{
		ID:         t.ID,
		Type:       t.Type,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
		Progress:   string(t.Progress),
		Result:     string(t.Result),
	}
}

// Tasks handles GET tasks?status=&limit=&offset=.
func (d *Deps) Tasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses []store.TaskStatus
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, store.TaskStatus(strings.TrimSpace(s)))
		}
	}

	limit := parseIntDefault(q.Get("limit"), 50)
	offset := parseIntDefault(q.Get("offset"), 0)

	tasks, err := d.Store.GetTasks(r.Context(), statuses, limit, offset)
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = toTaskView(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// Task handles GET task/{id}.
func (d *Deps) Task(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := d.Store.GetTask(r.Context(), id)
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		apperrors.WriteHTTP(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*t))
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
