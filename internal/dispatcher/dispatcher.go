// Package dispatcher runs the worker pool that claims and executes
// tasks, enforces per-task timeouts, and exposes lifecycle control to
// the control surface.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/store"
)

const (
	monitorInterval = 10 * time.Second
	pollTimeout     = time.Second
)

// Handler executes one task's work. It must check ctx between
// cooperative checkpoints (e.g. chunk boundaries) and return promptly on
// cancellation.
type Handler func(ctx context.Context, task store.Task) (result []byte, err error)

// Config configures a Dispatcher.
type Config struct {
	MaxWorkers int
	GracePeriod time.Duration
}

// Status is the Dispatcher's get_status() snapshot.
type Status struct {
	Running     bool
	WorkerCount int
	QueueDepth  int
	Frozen      bool
	CurrentTask map[int]string // worker index -> task id; idle workers have no entry
}

// Dispatcher owns the worker pool and monitor flow.
type Dispatcher struct {
	cfg   Config
	store *store.Store
	log   *zap.Logger

	handlers map[string]Handler

	mu          sync.Mutex
	frozen      bool
	running     bool
	currentTask map[int]string

	queue  chan store.Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Dispatcher with no handlers registered; callers bind
// task types with RegisterHandler.
func New(cfg Config, st *store.Store, log *zap.Logger) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	d := &Dispatcher{
		cfg:         cfg,
		store:       st,
		log:         log,
		handlers:    map[string]Handler{},
		currentTask: map[int]string{},
		queue:       make(chan store.Task, cfg.MaxWorkers*2),
	}
	return d
}

// RegisterHandler binds a task type to its handler. Unregistered types
// fail with "unknown task type".
func (d *Dispatcher) RegisterHandler(taskType string, h Handler) {
	d.handlers[taskType] = h
}

// AddTask creates a durable task and returns its id.
func (d *Dispatcher) AddTask(ctx context.Context, id, taskType string, params []byte, scheduleAt *int64, timeoutSec int) (string, error) {
	if timeoutSec <= 0 {
		timeoutSec = 1800
	}
	if err := d.store.CreateTask(ctx, id, taskType, params, scheduleAt, timeoutSec); err != nil {
		return "", err
	}
	return id, nil
}

// GetProgress returns the raw progress blob for a task, or nil if the
// task is unknown.
func (d *Dispatcher) GetProgress(ctx context.Context, id string) ([]byte, error) {
	t, err := d.store.GetTask(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	return t.Progress, nil
}

// GetStatus reports the current worker pool snapshot.
func (d *Dispatcher) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := make(map[int]string, len(d.currentTask))
	for k, v := range d.currentTask {
		snapshot[k] = v
	}
	return Status{
		Running:     d.running,
		WorkerCount: d.cfg.MaxWorkers,
		QueueDepth:  len(d.queue),
		Frozen:      d.frozen,
		CurrentTask: snapshot,
	}
}

// SetFrozen toggles whether the monitor loop claims new tasks. Running
// tasks are unaffected.
func (d *Dispatcher) SetFrozen(frozen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = frozen
}

func (d *Dispatcher) isFrozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

// ClearPendingQueue marks all pending tasks cancelled (queue/clear control
// surface operation); the rows are kept. It does not touch running or
// terminal tasks.
func (d *Dispatcher) ClearPendingQueue(ctx context.Context) error {
	tasks, err := d.store.GetTasks(ctx, []store.TaskStatus{store.TaskPending}, 10000, 0)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := d.store.UpdateTaskStatus(ctx, t.ID, store.TaskCancelled, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the worker pool and monitor flow, blocking until ctx is
// cancelled, then waiting up to the configured grace period for
// in-flight tasks before marking the remainder cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	for i := 0; i < d.cfg.MaxWorkers; i++ {
		d.wg.Add(1)
		go d.runWorker(runCtx, i)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runMonitor(runCtx)
	}()

	<-ctx.Done()
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.GracePeriod):
		d.log.Warn("dispatcher: grace period elapsed, aborting in-flight workers")
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	return d.cancelRemainingRunning(context.Background())
}

func (d *Dispatcher) cancelRemainingRunning(ctx context.Context) error {
	running, err := d.store.GetTasks(ctx, []store.TaskStatus{store.TaskRunning}, 1000, 0)
	if err != nil {
		return err
	}
	for _, t := range running {
		if err := d.store.UpdateTaskStatus(ctx, t.ID, store.TaskCancelled, nil,
			mustJSON(map[string]string{"reason": "shutdown"})); err != nil {
			return err
		}
	}
	return nil
}

// runWorker polls the queue (short timeout so it observes shutdown) and
// executes whatever arrives.
func (d *Dispatcher) runWorker(ctx context.Context, idx int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.queue:
			d.execute(ctx, idx, task)
		case <-time.After(pollTimeout):
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, workerIdx int, task store.Task) {
	workerID := fmt.Sprintf("worker-%d", workerIdx)

	d.mu.Lock()
	d.currentTask[workerIdx] = task.ID
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.currentTask, workerIdx)
		d.mu.Unlock()
	}()

	// Status is already "running" from the monitor's claim in tick(); this
	// only exists so add_task callers invoked directly (bypassing the
	// monitor, e.g. operator one-shots fed straight to the queue) still
	// get stamped. The status stays running; worker_id is set and
	// started_at is re-stamped to the current time.
	if err := d.store.UpdateTaskStatus(ctx, task.ID, store.TaskRunning, &workerID, nil); err != nil {
		d.log.Error("dispatcher: stamp worker", zap.String("task_id", task.ID), zap.Error(err))
	}

	handler, ok := d.handlers[task.Type]
	if !ok {
		d.log.Warn("dispatcher: unknown task type", zap.String("type", task.Type))
		_ = d.store.UpdateTaskStatus(ctx, task.ID, store.TaskFailed, &workerID,
			mustJSON(map[string]string{"error": "unknown task type"}))
		return
	}

	result, err := handler(ctx, task)
	if err != nil {
		d.log.Error("dispatcher: handler failed", zap.String("task_id", task.ID), zap.String("type", task.Type), zap.Error(err))
		_ = d.store.UpdateTaskStatus(ctx, task.ID, store.TaskFailed, &workerID,
			mustJSON(map[string]string{"error": err.Error()}))
		return
	}
	_ = d.store.UpdateTaskStatus(ctx, task.ID, store.TaskCompleted, &workerID, result)
}

// runMonitor periodically enqueues due tasks and sweeps timed-out ones.
func (d *Dispatcher) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now().UTC().Unix()

	if err := d.sweepTimeouts(ctx, now); err != nil {
		d.log.Error("dispatcher: sweep timeouts", zap.Error(err))
	}

	if d.isFrozen() {
		return
	}

	due, err := d.store.ClaimDue(ctx, now, d.cfg.MaxWorkers*2)
	if err != nil {
		d.log.Error("dispatcher: claim due", zap.Error(err))
		return
	}

	for _, t := range due {
		// tick is the only sender on the queue, so a free slot now is
		// still free at the send below. With no free slot, the rest stay
		// pending for the next tick instead of being claimed and dropped.
		if len(d.queue) >= cap(d.queue) {
			break
		}
		// Claim immediately so the next tick's ClaimDue doesn't see this
		// task again before a worker dequeues it.
		claimedBy := "dispatcher"
		if err := d.store.UpdateTaskStatus(ctx, t.ID, store.TaskRunning, &claimedBy, nil); err != nil {
			d.log.Error("dispatcher: claim task", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		select {
		case d.queue <- t:
		default:
			// Not reached while tick is the only sender (see the capacity
			// check above). A task dropped here would stay running until
			// sweepTimeouts fails it.
		}
	}
}

func (d *Dispatcher) sweepTimeouts(ctx context.Context, now int64) error {
	stuck, err := d.store.FindStuckRunning(ctx, now)
	if err != nil {
		return err
	}
	for _, t := range stuck {
		elapsed := now - *t.StartedAt
		err := d.store.UpdateTaskStatus(ctx, t.ID, store.TaskFailed, t.WorkerID,
			mustJSON(map[string]any{"error": "task timeout", "elapsed_sec": elapsed}))
		if err != nil {
			return err
		}
	}
	return nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
