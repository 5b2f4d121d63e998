// Package scheduler runs the single-threaded tick loop that creates
// tasks from a small set of named jobs on cron-like schedules.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/store"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const (
	tickInterval       = 60 * time.Second
	defaultMaxFailures = 5
	defaultMaxConcurrent = 3
)

// TaskCreator is the subset of Dispatcher the Scheduler needs.
type TaskCreator interface {
	AddTask(ctx context.Context, id, taskType string, params []byte, scheduleAt *int64, timeoutSec int) (string, error)
}

// RunningCounter reports how many tasks of a given type are currently
// running, for the same-type-conflict rule.
type RunningCounter interface {
	CountRunningByType(ctx context.Context, taskType string) (int, error)
}

// Job is one scheduled job definition.
type Job struct {
	Type            string
	Name            string
	SchedulePattern string
	Enabled         bool
	LastRun         int64
	NextRun         int64
	RunCount        int
	FailureCount    int
	MaxFailures     int
	TimeoutMinutes  int
	Params          map[string]any
	FirstRunDelaySec int
}

// Scheduler owns the in-memory job table and tick loop.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*Job
	dispatch TaskCreator
	counter  RunningCounter
	log      *zap.Logger

	maxConcurrentTasks int
}

// New constructs a Scheduler seeded with the default job set.
func New(dispatch TaskCreator, counter RunningCounter, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		dispatch:           dispatch,
		counter:            counter,
		log:                log,
		maxConcurrentTasks: defaultMaxConcurrent,
	}
	s.jobs = defaultJobs()
	now := time.Now().UTC()
	for _, j := range s.jobs {
		j.NextRun = nextRun(j.SchedulePattern, now).Unix()
	}
	return s
}

func defaultJobs() []*Job {
	return []*Job{
		{
			Type: "load_vacancies", Name: "hourly_load", SchedulePattern: "hourly",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 30,
			Params: map[string]any{"max_pages": 200},
		},
		{
			Type: "load_employers", Name: "daily_employers", SchedulePattern: "daily",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 20,
		},
		{
			Type: "cleanup", Name: "cleanup_6h", SchedulePattern: "0 */6 * * *",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 15,
			Params: map[string]any{"keep_days": 30, "vacuum": true},
		},
		{
			Type: "sync_host2", Name: "sync_host2_4h", SchedulePattern: "0 */4 * * *",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 10,
		},
		{
			Type: "process_pipeline", Name: "analyze_host3_daily", SchedulePattern: "daily",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 20,
			Params: map[string]any{"plugin": "host3"},
		},
		{
			Type: "system_health", Name: "system_health_5m", SchedulePattern: "*/5",
			Enabled: true, MaxFailures: defaultMaxFailures, TimeoutMinutes: 1,
			Params: map[string]any{"cpu_threshold": 80, "mem_threshold": 85, "disk_threshold": 90},
		},
	}
}

// Jobs returns a snapshot of the job table for the control surface.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = *j
	}
	return out
}

// NextScheduled returns the next-run time across all enabled jobs.
func (s *Scheduler) NextScheduled() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		t := time.Unix(j.NextRun, 0).UTC()
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// Run blocks, ticking every ~60s until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if j.NextRun <= now.Unix() {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	inFlight := 0
	for _, j := range due {
		if inFlight >= s.maxConcurrentTasks {
			break
		}

		running, err := s.counter.CountRunningByType(ctx, j.Type)
		if err != nil {
			s.log.Error("scheduler: count running", zap.String("job", j.Name), zap.Error(err))
			continue
		}
		if running > 0 {
			// Conflict rule: at most one running task per type from this path.
			s.advanceNextRun(j, now)
			continue
		}

		params, _ := json.Marshal(j.Params)
		taskID := uuid.NewString()
		timeoutSec := j.TimeoutMinutes * 60
		if timeoutSec <= 0 {
			timeoutSec = 1800
		}

		if _, err := s.dispatch.AddTask(ctx, taskID, j.Type, params, nil, timeoutSec); err != nil {
			s.recordFailure(j)
			s.log.Error("scheduler: create task", zap.String("job", j.Name), zap.Error(err))
			s.advanceNextRun(j, now)
			continue
		}

		s.recordSuccess(j, now)
		s.advanceNextRun(j, now)
		inFlight++
	}
}

func (s *Scheduler) recordSuccess(j *Job, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.LastRun = now.Unix()
	j.RunCount++
	j.FailureCount = 0
}

func (s *Scheduler) recordFailure(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.FailureCount++
	if j.FailureCount >= j.MaxFailures {
		j.Enabled = false
		s.log.Warn("scheduler: job disabled after repeated failures",
			zap.String("job", j.Name), zap.Int("failures", j.FailureCount))
	}
}

func (s *Scheduler) advanceNextRun(j *Job, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.NextRun = nextRun(j.SchedulePattern, now).Unix()
}

// nextRun computes the next fire time. Standard 5-field cron expressions
// (e.g. "0 */6 * * *") are handed to robfig/cron's schedule parser; the
// named shorthands hourly, daily, weekly and "*/N" (minutes) are not valid
// cron and are kept as an explicit fallback for compatibility (defaultJobs
// seeds hourly, daily and "*/5").
func nextRun(pattern string, now time.Time) time.Time {
	if sched, err := cronParser.Parse(pattern); err == nil {
		return sched.Next(now)
	}

	switch pattern {
	case "hourly":
		return now.Truncate(time.Hour).Add(time.Hour)
	case "daily":
		next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	case "weekly":
		next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		for next.Weekday() != time.Sunday || !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	}

	if n, ok := parseEveryNMinutes(pattern); ok {
		return now.Add(time.Duration(n) * time.Minute)
	}
	if n, ok := parseEveryNHours(pattern); ok {
		next := now.Truncate(time.Hour)
		for !next.After(now) || next.Hour()%n != 0 {
			next = next.Add(time.Hour)
		}
		return next
	}

	return now.Truncate(time.Hour).Add(time.Hour)
}

func parseEveryNMinutes(pattern string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(pattern, "*/%d", &n); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}

func parseEveryNHours(pattern string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(pattern, "0 */%d * * *", &n); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}
