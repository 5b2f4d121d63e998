package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiratut/v4/internal/apperrors"
)

// Filters handles GET filters.
func (d *Deps) Filters(w http.ResponseWriter, r *http.Request) {
	list, err := d.Filters.Load()
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filters": list})
}

type setActiveRequest struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// FiltersSetActive handles POST filters/set-active.
func (d *Deps) FiltersSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := d.Filters.SetActive(req.ID, req.Active); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type toggleAllRequest struct {
	Enable bool `json:"enable"`
}

// FiltersToggleAll handles POST filters/toggle-all.
func (d *Deps) FiltersToggleAll(w http.ResponseWriter, r *http.Request) {
	var req toggleAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := d.Filters.ToggleAll(req.Enable); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// FiltersInvert handles POST filters/invert.
func (d *Deps) FiltersInvert(w http.ResponseWriter, r *http.Request) {
	if err := d.Filters.Invert(); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type loadNowRequest struct {
	FilterIDs []string `json:"filter_ids"`
}

// FiltersLoadNow handles POST filters/load-now, creating immediate
// load_vacancies tasks for the given filter ids (or all active filters
// when filter_ids is omitted).
func (d *Deps) FiltersLoadNow(w http.ResponseWriter, r *http.Request) {
	var req loadNowRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	all, err := d.Filters.Load()
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}

	wanted := map[string]bool{}
	for _, id := range req.FilterIDs {
		wanted[id] = true
	}

	var created []string
	for _, f := range all {
		if len(wanted) > 0 && !wanted[f.ID] {
			continue
		}
		if len(wanted) == 0 && !f.Active {
			continue
		}

		params, _ := json.Marshal(map[string]any{"filter_id": f.ID, "filter": f, "max_pages": 200})
		taskID := uuid.NewString()
		if _, err := d.Dispatcher.AddTask(r.Context(), taskID, "load_vacancies", params, nil, 1800); err != nil {
			apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
			return
		}
		created = append(created, taskID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"created_task_ids": created})
}
