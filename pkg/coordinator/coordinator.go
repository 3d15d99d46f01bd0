package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize is the number of submissions that may wait for a free worker
// before Submit starts blocking.
const DefaultQueueSize = 64

// ErrInvalidConcurrency is returned by New for a non-positive worker count.
var ErrInvalidConcurrency = errors.New("max concurrent tasks must be positive")

// Runner executes one protocol run. The interpreter satisfies it.
type Runner interface {
	Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error)
}

// SubmitRequest describes a run to schedule. An empty TaskID is generated.
type SubmitRequest struct {
	TaskID       string
	ProtocolName string
	SessionID    string
	Metadata     map[string]string
}

type task struct {
	record domain.TaskRecord
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator runs protocol runs on a fixed pool of workers fed by a bounded queue.
// The pool size is the admission limit: at most that many runs are in the
// running status at any moment.
type Coordinator struct {
	runner    Runner
	workers   int
	queueSize int
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	queue      chan *task
	baseCtx    context.Context
	baseCancel context.CancelFunc
	group      errgroup.Group
	submitting sync.WaitGroup

	mu       sync.Mutex
	tasks    map[string]*task
	history  map[string]domain.TaskRecord
	stats    domain.TaskStats
	closed   bool
	shutdown chan struct{}
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics reports task activity to Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithQueueSize bounds the number of queued submissions.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// New starts a coordinator with maxConcurrent workers.
func New(runner Runner, maxConcurrent int, opts ...Option) (*Coordinator, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrency, maxConcurrent)
	}

	c := &Coordinator{
		runner:    runner,
		workers:   maxConcurrent,
		queueSize: DefaultQueueSize,
		logger:    logging.NewNop(),
		now:       time.Now,
		tasks:     make(map[string]*task),
		history:   make(map[string]domain.TaskRecord),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue = make(chan *task, c.queueSize)
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	for range c.workers {
		c.group.Go(c.work)
	}
	return c, nil
}

func (c *Coordinator) work() error {
	for {
		select {
		case <-c.baseCtx.Done():
			return nil
		case t := <-c.queue:
			if c.baseCtx.Err() != nil {
				// Shutting down; drain cancels whatever is left.
				return nil
			}
			c.execute(t)
		}
	}
}

// Submit registers a pending task and queues it.
// It blocks while the queue is full, until ctx is done or the coordinator shuts down.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", domain.ErrCoordinatorClosed
	}
	if c.known(req.TaskID) {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %q", domain.ErrDuplicateTask, req.TaskID)
	}

	t := &task{
		record: domain.TaskRecord{
			TaskID:       req.TaskID,
			ProtocolName: req.ProtocolName,
			SessionID:    req.SessionID,
			Metadata:     maps.Clone(req.Metadata),
			Status:       domain.TaskPending,
			SubmittedAt:  c.now(),
		},
		done: make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(c.baseCtx)
	c.tasks[req.TaskID] = t
	c.stats.Created++
	c.submitting.Add(1)
	c.mu.Unlock()
	defer c.submitting.Done()

	c.metrics.taskSubmitted()
	c.logger.Debug("Task submitted", "task_id", req.TaskID, "protocol", req.ProtocolName, "session_id", req.SessionID)

	select {
	case c.queue <- t:
		return req.TaskID, nil
	case <-ctx.Done():
		c.abandon(t, ctx.Err())
		return "", ctx.Err()
	case <-c.baseCtx.Done():
		c.abandon(t, domain.ErrCoordinatorClosed)
		return "", domain.ErrCoordinatorClosed
	}
}

// abandon cancels a task whose submission never reached the queue.
func (c *Coordinator) abandon(t *task, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.record.Status == domain.TaskPending {
		c.finishLocked(t, nil, fmt.Errorf("%w: %w", domain.ErrCancelled, cause), domain.TaskCancelled)
	}
}

func (c *Coordinator) known(id string) bool {
	if _, ok := c.tasks[id]; ok {
		return true
	}
	_, ok := c.history[id]
	return ok
}

func (c *Coordinator) execute(t *task) {
	c.mu.Lock()
	if t.record.Status != domain.TaskPending {
		// Cancelled while queued.
		c.mu.Unlock()
		return
	}
	t.record.Status = domain.TaskRunning
	t.record.StartedAt = c.now()
	c.stats.Running++
	c.mu.Unlock()

	c.metrics.taskStarted()
	c.logger.Debug("Task started", "task_id", t.record.TaskID)

	result, err := c.safeRun(t)

	status := domain.TaskCompleted
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled) && t.ctx.Err() != nil:
		status = domain.TaskCancelled
	default:
		status = domain.TaskFailed
	}

	c.mu.Lock()
	c.finishLocked(t, result, err, status)
	c.mu.Unlock()
}

// safeRun shields the pool from panicking runs.
func (c *Coordinator) safeRun(t *task) (result *domain.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Task panicked",
				"task_id", t.record.TaskID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return c.runner.Run(t.ctx, t.record.ProtocolName, t.record.SessionID)
}

// finishLocked moves a task to a terminal status exactly once. c.mu must be held.
func (c *Coordinator) finishLocked(t *task, result *domain.ExecutionResult, err error, status domain.TaskStatus) {
	if t.record.Status.IsTerminal() {
		return
	}
	wasRunning := t.record.Status == domain.TaskRunning

	t.record.Status = status
	t.record.Result = result
	t.record.FinishedAt = c.now()
	if err != nil {
		t.record.Error = err.Error()
	}

	var elapsed time.Duration
	if wasRunning {
		c.stats.Running--
		elapsed = t.record.FinishedAt.Sub(t.record.StartedAt)
	}
	switch status {
	case domain.TaskCompleted:
		c.stats.Completed++
		// Running mean over completed tasks only.
		c.stats.AvgExecutionTime += (elapsed - c.stats.AvgExecutionTime) / time.Duration(c.stats.Completed)
	case domain.TaskFailed:
		c.stats.Failed++
	case domain.TaskCancelled:
		c.stats.Cancelled++
	}

	t.cancel()
	close(t.done)

	c.metrics.taskFinished(status, wasRunning, elapsed)
	c.logger.Debug("Task finished", "task_id", t.record.TaskID, "status", status, "err", err)
}

// Await blocks until the task is terminal, the timeout elapses, or ctx is done,
// and returns the task's current record. A timeout does not cancel the task.
// A non-positive timeout waits without limit.
func (c *Coordinator) Await(ctx context.Context, taskID string, timeout time.Duration) (domain.TaskRecord, error) {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok {
		rec, archived := c.history[taskID]
		c.mu.Unlock()
		if archived {
			return rec, nil
		}
		return domain.TaskRecord{}, &domain.NotFoundError{Kind: domain.KindTask, ID: taskID}
	}
	c.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-t.done:
	case <-expired:
	case <-ctx.Done():
		return c.snapshot(t), ctx.Err()
	}
	return c.snapshot(t), nil
}

// Cancel requests cooperative cancellation. A pending task is cancelled at once;
// a running task stops before its next step. It returns false for unknown or
// terminal tasks.
func (c *Coordinator) Cancel(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok {
		return false
	}

	switch t.record.Status {
	case domain.TaskPending:
		c.finishLocked(t, nil, fmt.Errorf("%w: before start", domain.ErrCancelled), domain.TaskCancelled)
		return true
	case domain.TaskRunning:
		t.cancel()
		c.logger.Debug("Task cancellation requested", "task_id", taskID)
		return true
	}
	return false
}

// Get returns the current record of a task, including archived ones.
func (c *Coordinator) Get(taskID string) (domain.TaskRecord, error) {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok {
		rec, archived := c.history[taskID]
		c.mu.Unlock()
		if archived {
			return rec, nil
		}
		return domain.TaskRecord{}, &domain.NotFoundError{Kind: domain.KindTask, ID: taskID}
	}
	c.mu.Unlock()
	return c.snapshot(t), nil
}

// List returns the records of the active run map, oldest submission first.
func (c *Coordinator) List() []domain.TaskRecord {
	c.mu.Lock()
	records := make([]domain.TaskRecord, 0, len(c.tasks))
	for _, t := range c.tasks {
		records = append(records, copyRecord(t.record))
	}
	c.mu.Unlock()

	slices.SortFunc(records, func(a, b domain.TaskRecord) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return records
}

// History returns the records archived by CleanupCompleted.
func (c *Coordinator) History() []domain.TaskRecord {
	c.mu.Lock()
	records := slices.Collect(maps.Values(c.history))
	c.mu.Unlock()

	slices.SortFunc(records, func(a, b domain.TaskRecord) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return records
}

// WaitAll blocks until every task known at call time is terminal or ctx is done.
func (c *Coordinator) WaitAll(ctx context.Context) error {
	c.mu.Lock()
	pending := make([]chan struct{}, 0, len(c.tasks))
	for _, t := range c.tasks {
		if !t.record.Status.IsTerminal() {
			pending = append(pending, t.done)
		}
	}
	c.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// CleanupCompleted moves terminal records from the active map into the history
// and returns how many were moved.
func (c *Coordinator) CleanupCompleted() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, t := range c.tasks {
		if t.record.Status.IsTerminal() {
			c.history[id] = copyRecord(t.record)
			delete(c.tasks, id)
			n++
		}
	}
	return n
}

// PurgeHistory drops every archived record and returns how many were dropped.
func (c *Coordinator) PurgeHistory() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.history)
	clear(c.history)
	return n
}

// Stats returns a snapshot of the aggregate counters.
func (c *Coordinator) Stats() domain.TaskStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Shutdown rejects new submissions, cancels every non-terminal task and waits
// for in-flight runs to settle. It is safe to call more than once.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		go c.drain()
	}
	c.mu.Unlock()

	select {
	case <-c.shutdown:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) drain() {
	c.baseCancel()
	c.submitting.Wait()
	_ = c.group.Wait()

	c.mu.Lock()
	for _, t := range c.tasks {
		c.finishLocked(t, nil, fmt.Errorf("%w: coordinator shut down", domain.ErrCancelled), domain.TaskCancelled)
	}
	c.mu.Unlock()

	c.logger.Debug("Coordinator stopped")
	close(c.shutdown)
}

func (c *Coordinator) snapshot(t *task) domain.TaskRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRecord(t.record)
}

func copyRecord(r domain.TaskRecord) domain.TaskRecord {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}
