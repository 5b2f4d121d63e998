package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kiratut/v4/internal/apperrors"
)

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

// WorkersFreeze handles POST workers/freeze.
func (d *Deps) WorkersFreeze(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d.Dispatcher.SetFrozen(req.Frozen)
	writeJSON(w, http.StatusOK, map[string]any{"frozen": req.Frozen})
}

type queueClearRequest struct {
	Status string `json:"status"`
}

// QueueClear handles POST queue/clear. Only clearing the pending queue
// is supported; other statuses are rejected.
func (d *Deps) QueueClear(w http.ResponseWriter, r *http.Request) {
	var req queueClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != "" && req.Status != "pending" {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "only status=pending is supported")
		return
	}
	if err := d.Dispatcher.ClearPendingQueue(r.Context()); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
