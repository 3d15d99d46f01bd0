package cadence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/coordinator"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/aretw0/cadence/pkg/registry"
	"github.com/aretw0/cadence/pkg/session"
)

// DefaultMaxConcurrentTasks is the worker pool size used when none is configured.
const DefaultMaxConcurrentTasks = 4

// Engine is the high-level entry point for the Cadence library.
// It owns the registry, the session manager, the interpreter and the task coordinator.
type Engine struct {
	registry    *registry.Registry
	sessions    *session.Manager
	interpreter *runtime.Interpreter
	coordinator *coordinator.Coordinator

	store      ports.SessionPersistence
	mirror     ports.SessionPersistence
	locker     ports.DistributedLocker
	llm        ports.LanguageModelClient
	llmOptions ports.GenerateOptions
	invoker    ports.ToolInvoker
	hooks      domain.LifecycleHooks
	metrics    *coordinator.Metrics
	logger     *slog.Logger
	maxTasks   int
	queueSize  int
	sessionTTL time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLanguageModel sets the client used by prompt steps.
// Without one, prompt steps answer with a deterministic mock response.
func WithLanguageModel(llm ports.LanguageModelClient, opts ports.GenerateOptions) Option {
	return func(e *Engine) {
		e.llm = llm
		e.llmOptions = opts
	}
}

// WithToolInvoker sets the transport used by tool_api steps.
// Without one, tool_api steps return a mock echo of the request.
func WithToolInvoker(invoker ports.ToolInvoker) Option {
	return func(e *Engine) {
		e.invoker = invoker
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store ports.SessionPersistence) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSessionMirror keeps a best-effort copy of every session in a second store.
func WithSessionMirror(mirror ports.SessionPersistence) Option {
	return func(e *Engine) {
		e.mirror = mirror
	}
}

// WithLocker serializes session access across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithMaxConcurrentTasks bounds the number of simultaneously running submitted tasks.
func WithMaxConcurrentTasks(n int) Option {
	return func(e *Engine) {
		e.maxTasks = n
	}
}

// WithQueueSize bounds the number of submitted tasks waiting for a worker.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// WithDefaultSessionTTL applies to sessions created with a zero ttl.
func WithDefaultSessionTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.sessionTTL = ttl
	}
}

// WithMetrics reports coordinator activity to Prometheus collectors.
func WithMetrics(m *coordinator.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New initializes a new Cadence Engine. The returned engine runs a worker pool;
// call Shutdown to stop it.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		maxTasks: DefaultMaxConcurrentTasks,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.mirror != nil {
		sessionOpts = append(sessionOpts, session.WithMirror(eng.mirror))
	}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}

	eng.registry = registry.NewRegistry()
	eng.sessions = session.NewManager(eng.store, sessionOpts...)
	eng.interpreter = runtime.NewInterpreter(eng.registry, eng.sessions,
		runtime.WithLanguageModel(eng.llm),
		runtime.WithGenerateOptions(eng.llmOptions),
		runtime.WithToolInvoker(eng.invoker),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	)

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(eng.logger),
		coordinator.WithQueueSize(eng.queueSize),
	}
	if eng.metrics != nil {
		coordOpts = append(coordOpts, coordinator.WithMetrics(eng.metrics))
	}
	coord, err := coordinator.New(eng.interpreter, eng.maxTasks, coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start coordinator: %w", err)
	}
	eng.coordinator = coord

	return eng, nil
}

// RegisterProtocol adds or replaces a protocol by name.
func (e *Engine) RegisterProtocol(p domain.Protocol) error {
	return e.registry.RegisterProtocol(p)
}

// RegisterTool adds or replaces a tool definition by id.
func (e *Engine) RegisterTool(t domain.ToolDefinition) error {
	return e.registry.RegisterTool(t)
}

// Protocol returns a registered protocol.
func (e *Engine) Protocol(name string) (*domain.Protocol, error) {
	return e.registry.Protocol(name)
}

// Protocols lists the registered protocol names.
func (e *Engine) Protocols() []string {
	return e.registry.Protocols()
}

// Tools lists the registered tool ids.
func (e *Engine) Tools() []string {
	return e.registry.Tools()
}

// CreateSession starts a session with a generated id. A zero ttl uses the
// engine default, which itself defaults to no expiry.
func (e *Engine) CreateSession(ctx context.Context, ownerID string, ttl time.Duration) (*domain.Session, error) {
	return e.sessions.Create(ctx, ownerID, e.ttl(ttl))
}

// CreateSessionWithID starts a session under a caller-chosen id, seeded with data.
func (e *Engine) CreateSessionWithID(ctx context.Context, sessionID, ownerID string, ttl time.Duration, data map[string]any) (*domain.Session, error) {
	return e.sessions.CreateWithID(ctx, sessionID, ownerID, e.ttl(ttl), data)
}

func (e *Engine) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return e.sessionTTL
	}
	return ttl
}

// Session returns a copy of the session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// UpdateSession merges data into the session.
func (e *Engine) UpdateSession(ctx context.Context, sessionID string, data map[string]any) error {
	return e.sessions.Update(ctx, sessionID, data)
}

// DeleteSession removes the session.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Sessions lists live session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Run executes a protocol synchronously. The result is never nil.
func (e *Engine) Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
	return e.interpreter.Run(ctx, protocolName, sessionID)
}

// Submit schedules a run on the worker pool and returns its task id.
func (e *Engine) Submit(ctx context.Context, req coordinator.SubmitRequest) (string, error) {
	return e.coordinator.Submit(ctx, req)
}

// Await waits for a submitted task; see coordinator.Coordinator.Await.
func (e *Engine) Await(ctx context.Context, taskID string, timeout time.Duration) (domain.TaskRecord, error) {
	return e.coordinator.Await(ctx, taskID, timeout)
}

// Cancel requests cooperative cancellation of a submitted task.
func (e *Engine) Cancel(taskID string) bool {
	return e.coordinator.Cancel(taskID)
}

// Task returns the current record of a submitted task.
func (e *Engine) Task(taskID string) (domain.TaskRecord, error) {
	return e.coordinator.Get(taskID)
}

// Tasks lists the records of the active run map.
func (e *Engine) Tasks() []domain.TaskRecord {
	return e.coordinator.List()
}

// WaitAll blocks until every submitted task is terminal.
func (e *Engine) WaitAll(ctx context.Context) error {
	return e.coordinator.WaitAll(ctx)
}

// CleanupCompleted archives terminal task records.
func (e *Engine) CleanupCompleted() int {
	return e.coordinator.CleanupCompleted()
}

// PurgeHistory drops archived task records.
func (e *Engine) PurgeHistory() int {
	return e.coordinator.PurgeHistory()
}

// Stats returns aggregate task counters.
func (e *Engine) Stats() domain.TaskStats {
	return e.coordinator.Stats()
}

// Shutdown cancels outstanding tasks and waits for in-flight runs to settle.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.coordinator.Shutdown(ctx)
}
