package store

import (
	"context"
	"database/sql"
	"fmt"
)

const lastLoadWindowSec = 10 * 60

// Stats is the aggregate snapshot returned by the control surface's
// stats endpoint.
type Stats struct {
	TasksByStatus24h map[TaskStatus]int
	VacanciesTotal   int
	VacanciesToday   int
	VacanciesDone    int
	AddedLastLoad    int
}

// GetStats assembles the get_stats contract: per-status task counts for
// the last 24h, vacancy totals, and the "added during the last load run"
// metric derived from the most recent load_vacancies task's window.
func (s *Store) GetStats(ctx context.Context, nowUnixTS int64) (*Stats, error) {
	byStatus, err := s.CountTasksByStatusSince(ctx, nowUnixTS-24*3600)
	if err != nil {
		return nil, err
	}

	var total, done int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vacancies`).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: count vacancies: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vacancies WHERE is_processed = 1`).Scan(&done); err != nil {
		return nil, fmt.Errorf("store: count processed vacancies: %w", err)
	}

	dayStart := startOfDayUnix(nowUnixTS)
	var today int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vacancies WHERE created_at >= ?`, dayStart).Scan(&today); err != nil {
		return nil, fmt.Errorf("store: count today vacancies: %w", err)
	}

	added, err := s.addedDuringLastLoad(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TasksByStatus24h: byStatus,
		VacanciesTotal:   total,
		VacanciesToday:   today,
		VacanciesDone:    done,
		AddedLastLoad:    added,
	}, nil
}

// addedDuringLastLoad counts vacancies whose created_at falls in the
// 10-minute window ending at the most recent load_vacancies task's latest
// of (created_at, started_at, finished_at).
func (s *Store) addedDuringLastLoad(ctx context.Context) (int, error) {
	var createdAt int64
	var startedAt, finishedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, started_at, finished_at FROM tasks
		 WHERE type = 'load_vacancies'
		 ORDER BY created_at DESC LIMIT 1`).
		Scan(&createdAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: find last load_vacancies task: %w", err)
	}

	anchor := createdAt
	if startedAt.Valid && startedAt.Int64 > anchor {
		anchor = startedAt.Int64
	}
	if finishedAt.Valid && finishedAt.Int64 > anchor {
		anchor = finishedAt.Int64
	}
	windowStart := anchor - lastLoadWindowSec

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vacancies WHERE created_at >= ? AND created_at <= ?`,
		windowStart, anchor).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count added during last load: %w", err)
	}
	return count, nil
}

// ChangesStat is one day's worth of the combined new/changed breakdown.
type ChangesStat struct {
	DayStart int64
	New      int
	Changed  int
}

// GetCombinedChangesStats returns, for each of the last `days` calendar
// days, a split of vacancies first created that day versus vacancies
// merely updated that day (content changed on a later load).
func (s *Store) GetCombinedChangesStats(ctx context.Context, nowUnixTS int64, days int) ([]ChangesStat, error) {
	if days <= 0 {
		days = 7
	}
	out := make([]ChangesStat, 0, days)
	dayStart := startOfDayUnix(nowUnixTS)

	for i := 0; i < days; i++ {
		windowStart := dayStart - int64(i)*86400
		windowEnd := windowStart + 86400

		var newCount int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM vacancies WHERE created_at >= ? AND created_at < ?`,
			windowStart, windowEnd).Scan(&newCount); err != nil {
			return nil, fmt.Errorf("store: count new vacancies: %w", err)
		}

		var changedCount int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM vacancies WHERE updated_at >= ? AND updated_at < ? AND updated_at != created_at`,
			windowStart, windowEnd).Scan(&changedCount); err != nil {
			return nil, fmt.Errorf("store: count changed vacancies: %w", err)
		}

		out = append(out, ChangesStat{DayStart: windowStart, New: newCount, Changed: changedCount})
	}
	return out, nil
}

func startOfDayUnix(ts int64) int64 {
	const day = 86400
	return (ts / day) * day
}
