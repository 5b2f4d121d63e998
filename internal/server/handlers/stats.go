package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kiratut/v4/internal/apperrors"
	"github.com/kiratut/v4/internal/sysmetrics"
)

// statsResponse is the get_stats contract.
type statsResponse struct {
	TasksByStatus24h map[string]int `json:"tasks_by_status_24h"`
	VacanciesTotal   int            `json:"vacancies_total"`
	VacanciesToday   int            `json:"vacancies_today"`
	VacanciesDone    int            `json:"vacancies_processed"`
	AddedLastRun10m  int            `json:"added_last_run_10m_window"`
	CPUPercent       float64        `json:"cpu_percent"`
	MemPercent       float64        `json:"mem_percent"`
	DiskPercent      float64        `json:"disk_percent"`
	DBSizeMB         float64        `json:"db_size_mb"`
	ActiveWorkers    int            `json:"active_workers"`
	ConfiguredWorkers int           `json:"configured_workers"`
}

// Stats handles GET stats.
func (d *Deps) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := d.Store.GetStats(ctx, nowUnix())
	if err != nil {
		apperrors.WriteHTTP(w, http.StatusInternalServerError, err.Error())
		return
	}

	byStatus := make(map[string]int, len(stats.TasksByStatus24h))
	for k, v := range stats.TasksByStatus24h {
		byStatus[string(k)] = v
	}

	var sample sysmetrics.Sample
	if health, err := d.Store.LatestSystemHealth(ctx); err == nil && health != nil {
		sample = sysmetrics.Sample{
			CPUPercent:  health.CPUPct,
			MemPercent:  health.MemPct,
			DiskPercent: health.DiskPct,
			DBSizeMB:    health.DBSizeMB,
		}
	}

	status := d.Dispatcher.GetStatus()
	active := 0
	for range status.CurrentTask {
		active++
	}

	resp := statsResponse{
		TasksByStatus24h:  byStatus,
		VacanciesTotal:    stats.VacanciesTotal,
		VacanciesToday:    stats.VacanciesToday,
		VacanciesDone:     stats.VacanciesDone,
		AddedLastRun10m:   stats.AddedLastLoad,
		CPUPercent:        sample.CPUPercent,
		MemPercent:        sample.MemPercent,
		DiskPercent:       sample.DiskPercent,
		DBSizeMB:          sample.DBSizeMB,
		ActiveWorkers:     active,
		ConfiguredWorkers: status.WorkerCount,
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
