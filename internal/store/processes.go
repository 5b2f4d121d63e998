package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"syscall"
)

// ProcessStatus describes a registered long-running local process.
type ProcessStatus string

const (
	ProcessRunning ProcessStatus = "running"
	ProcessStopped ProcessStatus = "stopped"
	ProcessDead    ProcessStatus = "dead"
)

// ProcessRecord is a row in system_processes, keyed by logical name (e.g.
// "scheduler_daemon", "web_server").
type ProcessRecord struct {
	Name      string
	PID       int
	Cmdline   string
	Host      string
	Port      int
	Status    ProcessStatus
	StartedAt int64
	UpdatedAt int64
}

// RegisterProcess upserts a process registry row by name.
func (s *Store) RegisterProcess(ctx context.Context, name string, pid int, cmdline, host string, port int) error {
	now := nowUnix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_processes (name, pid, cmdline, host, port, status, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   pid = excluded.pid, cmdline = excluded.cmdline, host = excluded.host,
		   port = excluded.port, status = excluded.status, started_at = excluded.started_at,
		   updated_at = excluded.updated_at`,
		name, pid, cmdline, host, port, string(ProcessRunning), now, now)
	if err != nil {
		return fmt.Errorf("store: register process: %w", err)
	}
	return nil
}

// GetProcessPID returns the registered pid for name, or 0 if unknown.
func (s *Store) GetProcessPID(ctx context.Context, name string) (int, error) {
	var pid int
	err := s.db.QueryRowContext(ctx, `SELECT pid FROM system_processes WHERE name = ?`, name).Scan(&pid)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get process pid: %w", err)
	}
	return pid, nil
}

// GetProcess returns the full process record, or nil if unregistered.
func (s *Store) GetProcess(ctx context.Context, name string) (*ProcessRecord, error) {
	var p ProcessRecord
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, pid, cmdline, host, port, status, started_at, updated_at
		 FROM system_processes WHERE name = ?`, name).
		Scan(&p.Name, &p.PID, &p.Cmdline, &p.Host, &p.Port, &status, &p.StartedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get process: %w", err)
	}
	p.Status = ProcessStatus(status)
	return &p, nil
}

// KillProcess best-effort signals the OS process for name, then marks the
// registry row stopped regardless of whether the signal succeeded.
func (s *Store) KillProcess(ctx context.Context, name string) error {
	p, err := s.GetProcess(ctx, name)
	if err != nil {
		return err
	}
	if p != nil && p.PID > 0 {
		if proc, err := os.FindProcess(p.PID); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE system_processes SET status = ?, updated_at = ? WHERE name = ?`,
		string(ProcessStopped), nowUnix(), name)
	if err != nil {
		return fmt.Errorf("store: mark process stopped: %w", err)
	}
	return nil
}

// CleanupDeadProcesses reconciles registry rows marked running whose pid is
// no longer alive on this host, marking them dead. Rows marked stopped are
// not checked, so a stopped row whose pid is alive is left as it is.
func (s *Store) CleanupDeadProcesses(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pid FROM system_processes WHERE status = ?`, string(ProcessRunning))
	if err != nil {
		return 0, fmt.Errorf("store: list running processes: %w", err)
	}

	type candidate struct {
		name string
		pid  int
	}
	var dead []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.name, &c.pid); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: scan process: %w", err)
		}
		if !isProcessAlive(c.pid) {
			dead = append(dead, c)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, c := range dead {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE system_processes SET status = ?, updated_at = ? WHERE name = ?`,
			string(ProcessDead), nowUnix(), c.name); err != nil {
			return 0, fmt.Errorf("store: mark process dead: %w", err)
		}
	}
	return len(dead), nil
}

// isProcessAlive checks for process existence via signal 0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
