package handlers

import (
	"net/http"

	"github.com/kiratut/v4/internal/apperrors"
)

// VacanciesRecent handles GET vacancies/recent?limit=.
func (d *Deps) VacanciesRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}

	rows, err := d.Store.GetRecentVacancies(r.Context(), limit)
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vacancies": rows})
}
