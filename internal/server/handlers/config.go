package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kiratut/v4/internal/apperrors"
	"github.com/kiratut/v4/internal/config"
)

// ConfigRead handles GET config/read.
func (d *Deps) ConfigRead(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	if cfg == nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, "config not loaded")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ConfigWrite handles POST config/write. On a malformed body, the live
// config is left untouched and the last-good file remains active
// (ConfigInvalid never replaces the live config).
func (d *Deps) ConfigWrite(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		apperrors.WriteHTTP(w, http.StatusBadRequest, "invalid config body: "+err.Error())
		return
	}
	if err := config.Write(d.ConfigPath, &cfg, time.Now()); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := config.Load(r.Context(), d.ConfigPath); err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, "config written but reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "written"})
}
