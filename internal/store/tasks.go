package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TaskStatus is one of the task lifecycle states.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a durable unit of deferred work.
type Task struct {
	ID         string
	Type       string
	Params     []byte
	Status     TaskStatus
	CreatedAt  int64
	ScheduleAt *int64
	StartedAt  *int64
	FinishedAt *int64
	TimeoutSec int
	WorkerID   *string
	Result     []byte
	Progress   []byte
}

// CreateTask inserts a new task in "pending" status. Duplicate ids are a
// no-op (idempotent create).
func (s *Store) CreateTask(ctx context.Context, id, taskType string, params []byte, scheduleAt *int64, timeoutSec int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, type, params, status, created_at, schedule_at, timeout_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, taskType, string(params), string(TaskPending), nowUnix(), scheduleAt, timeoutSec)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// ClaimDue returns up to limit pending tasks whose schedule_at has arrived,
// ordered schedule_at ASC, created_at ASC. This read does not itself claim
// the tasks; callers must follow up with UpdateTaskStatus(..., running, ...).
func (s *Store) ClaimDue(ctx context.Context, now int64, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, params, status, created_at, schedule_at, started_at, finished_at,
		        timeout_sec, worker_id, result, progress
		 FROM tasks
		 WHERE status = ? AND (schedule_at IS NULL OR schedule_at <= ?)
		 ORDER BY schedule_at ASC, created_at ASC
		 LIMIT ?`,
		string(TaskPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim due: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdateTaskStatus transitions a task's status, stamping started_at on the
// move to running and finished_at on a terminal status. No-ops (without
// error) if the task is already terminal.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, newStatus TaskStatus, workerID *string, result []byte) error {
	now := nowUnix()

	var setClauses []string
	args := []any{string(newStatus)}
	setClauses = append(setClauses, "status = ?")

	switch newStatus {
	case TaskRunning:
		setClauses = append(setClauses, "started_at = ?", "worker_id = ?")
		args = append(args, now, workerID)
	case TaskCompleted, TaskFailed, TaskCancelled:
		setClauses = append(setClauses, "finished_at = ?")
		args = append(args, now)
		if result != nil {
			setClauses = append(setClauses, "result = ?")
			args = append(args, string(result))
		}
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE tasks SET %s WHERE id = ? AND status NOT IN (?, ?, ?)`,
		strings.Join(setClauses, ", "))
	args = append(args, string(TaskCompleted), string(TaskFailed), string(TaskCancelled))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	return nil
}

// UpdateTaskProgress overwrites a task's progress blob. Callers should
// throttle calls (e.g. once per page) to avoid write storms.
func (s *Store) UpdateTaskProgress(ctx context.Context, id string, progress []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET progress = ? WHERE id = ?`, string(progress), id)
	if err != nil {
		return fmt.Errorf("store: update task progress: %w", err)
	}
	return nil
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, params, status, created_at, schedule_at, started_at, finished_at,
		        timeout_sec, worker_id, result, progress
		 FROM tasks WHERE id = ?`, id)

	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return t, nil
}

// GetTasks returns a page of tasks, optionally filtered by a set of
// statuses, newest created_at first.
func (s *Store) GetTasks(ctx context.Context, statuses []TaskStatus, limit, offset int) ([]Task, error) {
	query := `SELECT id, type, params, status, created_at, schedule_at, started_at, finished_at,
	                 timeout_sec, worker_id, result, progress
	          FROM tasks`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CountTasksByStatusSince returns per-status counts for tasks created at or
// after sinceUnix (used by get_stats' "last 24h" window).
func (s *Store) CountTasksByStatusSince(ctx context.Context, sinceUnix int64) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks WHERE created_at >= ? GROUP BY status`, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("store: count tasks by status: %w", err)
	}
	defer rows.Close()

	out := map[TaskStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("store: scan status count: %w", err)
		}
		out[TaskStatus(status)] = count
	}
	return out, rows.Err()
}

// CountRunningByType returns the number of currently-running tasks of the
// given type, used by the Scheduler's same-type-conflict rule.
func (s *Store) CountRunningByType(ctx context.Context, taskType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE type = ? AND status = ?`,
		taskType, string(TaskRunning)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count running by type: %w", err)
	}
	return count, nil
}

// FindStuckRunning returns running tasks whose started_at+timeout_sec has
// elapsed as of now, for the Dispatcher monitor loop's timeout sweep.
func (s *Store) FindStuckRunning(ctx context.Context, now int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, params, status, created_at, schedule_at, started_at, finished_at,
		        timeout_sec, worker_id, result, progress
		 FROM tasks
		 WHERE status = ? AND started_at IS NOT NULL AND (started_at + timeout_sec) <= ?`,
		string(TaskRunning), now)
	if err != nil {
		return nil, fmt.Errorf("store: find stuck running: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// DeleteTerminalOlderThan deletes tasks in a terminal status whose
// finished_at is older than cutoffUnix, for the cleanup job.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE status IN (?, ?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		string(TaskCompleted), string(TaskFailed), string(TaskCancelled), cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("store: delete old terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum runs SQLite's VACUUM to reclaim space after a large cleanup.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(row rowScanner) (*Task, error) {
	var t Task
	var params, result, progress sql.NullString
	var status string
	var scheduleAt, startedAt, finishedAt sql.NullInt64
	var workerID sql.NullString

	if err := row.Scan(&t.ID, &t.Type, &params, &status, &t.CreatedAt, &scheduleAt,
		&startedAt, &finishedAt, &t.TimeoutSec, &workerID, &result, &progress); err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	if params.Valid {
		t.Params = []byte(params.String)
	}
	if result.Valid {
		t.Result = []byte(result.String)
	}
	if progress.Valid {
		t.Progress = []byte(progress.String)
	}
	if scheduleAt.Valid {
		v := scheduleAt.Int64
		t.ScheduleAt = &v
	}
	if startedAt.Valid {
		v := startedAt.Int64
		t.StartedAt = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Int64
		t.FinishedAt = &v
	}
	if workerID.Valid {
		v := workerID.String
		t.WorkerID = &v
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
