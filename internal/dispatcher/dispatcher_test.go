package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddTaskDefaultsTimeout(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{}, st, zap.NewNop())

	id, err := d.AddTask(context.Background(), "t1", "cleanup", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	task, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1800, task.TimeoutSec)
}

func TestGetStatusReportsFrozenAndWorkerCount(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{MaxWorkers: 2}, st, zap.NewNop())

	status := d.GetStatus()
	assert.Equal(t, 2, status.WorkerCount)
	assert.False(t, status.Frozen)

	d.SetFrozen(true)
	assert.True(t, d.GetStatus().Frozen)
}

func TestClearPendingQueueCancelsOnlyPending(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{}, st, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, st.CreateTask(ctx, "pending1", "cleanup", nil, nil, 60))
	require.NoError(t, st.CreateTask(ctx, "running1", "cleanup", nil, nil, 60))
	require.NoError(t, st.UpdateTaskStatus(ctx, "running1", store.TaskRunning, nil, nil))

	require.NoError(t, d.ClearPendingQueue(ctx))

	pending, err := st.GetTask(ctx, "pending1")
	require.NoError(t, err)
	assert.Equal(t, store.TaskCancelled, pending.Status)

	running, err := st.GetTask(ctx, "running1")
	require.NoError(t, err)
	assert.Equal(t, store.TaskRunning, running.Status)
}

func TestExecuteUnknownTaskTypeFailsTask(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{MaxWorkers: 1}, st, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, st.CreateTask(ctx, "t1", "no_such_type", nil, nil, 60))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	d.execute(ctx, 0, *task)

	got, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.TaskFailed, got.Status)
}

func TestExecuteRunsRegisteredHandler(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{MaxWorkers: 1}, st, zap.NewNop())
	ctx := context.Background()

	called := false
	d.RegisterHandler("cleanup", func(ctx context.Context, task store.Task) ([]byte, error) {
		called = true
		return []byte(`{"deleted":1}`), nil
	})

	require.NoError(t, st.CreateTask(ctx, "t1", "cleanup", nil, nil, 60))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	d.execute(ctx, 0, *task)

	assert.True(t, called)
	got, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, got.Status)
	assert.Equal(t, []byte(`{"deleted":1}`), got.Result)
}

func TestRunDrainsQueuedTaskBeforeShutdown(t *testing.T) {
	st := openTestStore(t)
	d := New(Config{MaxWorkers: 1, GracePeriod: time.Second}, st, zap.NewNop())

	done := make(chan struct{})
	d.RegisterHandler("cleanup", func(ctx context.Context, task store.Task) ([]byte, error) {
		close(done)
		return []byte(`{}`), nil
	})

	ctx := context.Background()
	require.NoError(t, st.CreateTask(ctx, "t1", "cleanup", nil, nil, 60))
	task, err := st.GetTask(ctx, "t1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- d.Run(runCtx) }()

	d.queue <- *task

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	cancel()
	select {
	case err := <-runErrCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
