package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SystemHealthSample is one point in the append-only health time series.
type SystemHealthSample struct {
	TS          int64
	CPUPct      float64
	MemPct      float64
	DiskPct     float64
	DBSizeMB    float64
	ActiveTasks int
	HostStatus  []byte // opaque JSON
}

// SaveSystemHealth appends a health sample.
func (s *Store) SaveSystemHealth(ctx context.Context, sample SystemHealthSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_health (ts, cpu_pct, mem_pct, disk_pct, db_size_mb, active_tasks, host_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.TS, sample.CPUPct, sample.MemPct, sample.DiskPct, sample.DBSizeMB,
		sample.ActiveTasks, string(sample.HostStatus))
	if err != nil {
		return fmt.Errorf("store: save system health: %w", err)
	}
	return nil
}

// LatestSystemHealth returns the most recent health sample, or nil if none.
func (s *Store) LatestSystemHealth(ctx context.Context) (*SystemHealthSample, error) {
	var sample SystemHealthSample
	var hostStatus string
	err := s.db.QueryRowContext(ctx,
		`SELECT ts, cpu_pct, mem_pct, disk_pct, db_size_mb, active_tasks, host_status
		 FROM system_health ORDER BY ts DESC LIMIT 1`).
		Scan(&sample.TS, &sample.CPUPct, &sample.MemPct, &sample.DiskPct, &sample.DBSizeMB,
			&sample.ActiveTasks, &hostStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest system health: %w", err)
	}
	sample.HostStatus = []byte(hostStatus)
	return &sample, nil
}
