package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/coordinator"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRunner blocks every run until release is closed and tracks peak concurrency.
type gatedRunner struct {
	release chan struct{}
	started chan string
	active  atomic.Int32
	peak    atomic.Int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		release: make(chan struct{}),
		started: make(chan string, 100),
	}
}

func (g *gatedRunner) Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.started <- sessionID
	<-g.release
	return &domain.ExecutionResult{ProtocolName: protocolName, SessionID: sessionID, Success: true}, nil
}

type funcRunner func(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error)

func (f funcRunner) Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
	return f(ctx, protocolName, sessionID)
}

func newCoordinator(t *testing.T, runner coordinator.Runner, workers int, opts ...coordinator.Option) *coordinator.Coordinator {
	t.Helper()
	c, err := coordinator.New(runner, workers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func TestNew_RejectsInvalidConcurrency(t *testing.T) {
	_, err := coordinator.New(funcRunner(nil), 0)
	assert.ErrorIs(t, err, coordinator.ErrInvalidConcurrency)
}

func TestCoordinator_ConcurrencyBound(t *testing.T) {
	runner := newGatedRunner()
	c := newCoordinator(t, runner, 3)
	ctx := context.Background()

	ids := make([]string, 10)
	for i := range ids {
		id, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids[i] = id
	}

	for range 3 {
		<-runner.started
	}
	// Give the pool a chance to over-admit if it were going to.
	time.Sleep(50 * time.Millisecond)

	running := 0
	for _, rec := range c.List() {
		if rec.Status == domain.TaskRunning {
			running++
		}
	}
	assert.Equal(t, 3, running)
	assert.Equal(t, int64(3), c.Stats().Running)

	close(runner.release)
	require.NoError(t, c.WaitAll(ctx))

	assert.LessOrEqual(t, runner.peak.Load(), int32(3))
	for _, id := range ids {
		rec, err := c.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskCompleted, rec.Status)
		assert.True(t, rec.Result.Success)
	}

	stats := c.Stats()
	assert.Equal(t, int64(10), stats.Created)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, int64(0), stats.Running)
	assert.Greater(t, stats.AvgExecutionTime, time.Duration(0))
}

func TestCoordinator_DuplicateTaskID(t *testing.T) {
	runner := newGatedRunner()
	close(runner.release)
	c := newCoordinator(t, runner, 1)
	ctx := context.Background()

	_, err := c.Submit(ctx, coordinator.SubmitRequest{TaskID: "t1", ProtocolName: "p", SessionID: "s"})
	require.NoError(t, err)
	_, err = c.Submit(ctx, coordinator.SubmitRequest{TaskID: "t1", ProtocolName: "p", SessionID: "s"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTask)

	// Archived ids stay reserved.
	_, err = c.Await(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CleanupCompleted())
	_, err = c.Submit(ctx, coordinator.SubmitRequest{TaskID: "t1", ProtocolName: "p", SessionID: "s"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTask)
}

func TestCoordinator_AwaitTimeoutDoesNotCancel(t *testing.T) {
	runner := newGatedRunner()
	c := newCoordinator(t, runner, 1)
	ctx := context.Background()

	id, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "s"})
	require.NoError(t, err)
	<-runner.started

	rec, err := c.Await(ctx, id, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, rec.Status)

	close(runner.release)
	rec, err = c.Await(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, rec.Status)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

func TestCoordinator_AwaitUnknown(t *testing.T) {
	c := newCoordinator(t, newGatedRunner(), 1)
	_, err := c.Await(context.Background(), "ghost", time.Millisecond)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.KindTask, nf.Kind)
}

func TestCoordinator_CancelRunningBetweenSteps(t *testing.T) {
	stepDone := make(chan struct{})
	proceed := make(chan struct{})
	var secondStepRan atomic.Bool

	// Emulates the interpreter: one blocking step, then a cancellation check.
	runner := funcRunner(func(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
		res := &domain.ExecutionResult{ProtocolName: protocolName, SessionID: sessionID}
		res.StepsExecuted = append(res.StepsExecuted, domain.StepOutcome{StepID: "first", Success: true})
		close(stepDone)
		<-proceed
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w before step %q: %w", domain.ErrCancelled, "second", err)
		}
		secondStepRan.Store(true)
		res.Success = true
		return res, nil
	})

	c := newCoordinator(t, runner, 1)
	ctx := context.Background()

	id, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "s"})
	require.NoError(t, err)
	<-stepDone

	assert.True(t, c.Cancel(id))
	close(proceed)

	rec, err := c.Await(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, rec.Status)
	assert.False(t, secondStepRan.Load())
	require.NotNil(t, rec.Result)
	assert.Len(t, rec.Result.StepsExecuted, 1)
	assert.Contains(t, rec.Error, "cancelled")

	assert.False(t, c.Cancel(id), "terminal tasks cannot be cancelled")
	assert.Equal(t, int64(1), c.Stats().Cancelled)
	assert.Equal(t, int64(0), c.Stats().Completed)
}

func TestCoordinator_CancelPending(t *testing.T) {
	runner := newGatedRunner()
	c := newCoordinator(t, runner, 1)
	ctx := context.Background()

	first, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "a"})
	require.NoError(t, err)
	<-runner.started

	queued, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "b"})
	require.NoError(t, err)

	assert.True(t, c.Cancel(queued))
	rec, err := c.Get(queued)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, rec.Status)
	assert.True(t, rec.StartedAt.IsZero(), "a cancelled pending task never starts")

	close(runner.release)
	_, err = c.Await(ctx, first, time.Second)
	require.NoError(t, err)
	require.NoError(t, c.WaitAll(ctx))

	select {
	case sid := <-runner.started:
		t.Fatalf("cancelled task ran for session %s", sid)
	default:
	}
	assert.False(t, c.Cancel("ghost"))
}

func TestCoordinator_FailuresAndPanics(t *testing.T) {
	runner := funcRunner(func(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
		switch sessionID {
		case "panic":
			panic("boom")
		case "fail":
			return &domain.ExecutionResult{Error: "tool down"}, errors.New("tool down")
		}
		return &domain.ExecutionResult{Success: true}, nil
	})
	c := newCoordinator(t, runner, 2)
	ctx := context.Background()

	panicked, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "panic"})
	require.NoError(t, err)
	failed, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "fail"})
	require.NoError(t, err)
	ok, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "ok"})
	require.NoError(t, err)
	require.NoError(t, c.WaitAll(ctx))

	rec, _ := c.Get(panicked)
	assert.Equal(t, domain.TaskFailed, rec.Status)
	assert.Contains(t, rec.Error, "boom")

	rec, _ = c.Get(failed)
	assert.Equal(t, domain.TaskFailed, rec.Status)
	assert.Equal(t, "tool down", rec.Error)

	rec, _ = c.Get(ok)
	assert.Equal(t, domain.TaskCompleted, rec.Status)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestCoordinator_CleanupAndPurge(t *testing.T) {
	runner := newGatedRunner()
	c := newCoordinator(t, runner, 1)
	ctx := context.Background()

	done, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "a", Metadata: map[string]string{"k": "v"}})
	require.NoError(t, err)
	<-runner.started
	runner.release <- struct{}{}
	_, err = c.Await(ctx, done, time.Second)
	require.NoError(t, err)

	running, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "b"})
	require.NoError(t, err)
	<-runner.started

	assert.Equal(t, 1, c.CleanupCompleted())
	require.Len(t, c.List(), 1)
	assert.Equal(t, running, c.List()[0].TaskID)

	archived, err := c.Get(done)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, archived.Status)
	assert.Equal(t, "v", archived.Metadata["k"])
	assert.Len(t, c.History(), 1)

	assert.Equal(t, 1, c.PurgeHistory())
	_, err = c.Get(done)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	close(runner.release)
}

func TestCoordinator_Shutdown(t *testing.T) {
	var finished atomic.Int32
	started := make(chan struct{}, 10)
	runner := funcRunner(func(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		finished.Add(1)
		return &domain.ExecutionResult{}, fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
	})

	c, err := coordinator.New(runner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	var ids []string
	for i := range 5 {
		id, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	<-started
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
	require.NoError(t, c.Shutdown(shutdownCtx), "second shutdown is a no-op")

	assert.Equal(t, int32(2), finished.Load(), "in-flight runs settle before Shutdown returns")
	for _, id := range ids {
		rec, err := c.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskCancelled, rec.Status, id)
	}

	_, err = c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "late"})
	assert.ErrorIs(t, err, domain.ErrCoordinatorClosed)
}

func TestCoordinator_SubmitBlocksOnFullQueue(t *testing.T) {
	runner := newGatedRunner()
	c := newCoordinator(t, runner, 1, coordinator.WithQueueSize(1))
	ctx := context.Background()

	_, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "running"})
	require.NoError(t, err)
	<-runner.started
	_, err = c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: "queued"})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = c.Submit(short, coordinator.SubmitRequest{TaskID: "overflow", ProtocolName: "p", SessionID: "overflow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, err := c.Get("overflow")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, rec.Status)

	close(runner.release)
}

func TestCoordinator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := coordinator.MustNewMetrics(reg)
	// Registering twice reuses the collectors.
	again := coordinator.MustNewMetrics(reg)
	require.NotNil(t, again)

	runner := newGatedRunner()
	close(runner.release)
	c := newCoordinator(t, runner, 2, coordinator.WithMetrics(metrics))
	ctx := context.Background()

	for i := range 3 {
		_, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}
	require.NoError(t, c.WaitAll(ctx))

	count, err := testutil.GatherAndCount(reg, "cadence_coordinator_tasks_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series for the completed status")

	families, err := reg.Gather()
	require.NoError(t, err)
	var submitted float64
	for _, mf := range families {
		if mf.GetName() == "cadence_coordinator_tasks_submitted_total" {
			submitted = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), submitted)
}

func TestCoordinator_ConcurrentSubmitters(t *testing.T) {
	var runs atomic.Int32
	runner := funcRunner(func(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
		runs.Add(1)
		return &domain.ExecutionResult{Success: true}, nil
	})
	c := newCoordinator(t, runner, 4, coordinator.WithQueueSize(2))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Submit(ctx, coordinator.SubmitRequest{ProtocolName: "p", SessionID: fmt.Sprintf("s%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, c.WaitAll(ctx))
	assert.Equal(t, int32(50), runs.Load())
	assert.Equal(t, int64(50), c.Stats().Completed)
}
