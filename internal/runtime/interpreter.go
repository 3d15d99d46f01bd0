package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// Catalog resolves the protocols and tools referenced by a run.
type Catalog interface {
	ToolSource
	Protocol(name string) (*domain.Protocol, error)
}

// SessionAccess runs fn with exclusive access to a session and persists the patch it returns.
type SessionAccess interface {
	WithSession(ctx context.Context, sessionID string, fn func(context.Context, *domain.Session) (domain.SessionPatch, error)) error
}

// Interpreter drives the step loop of one protocol against one session.
// It is safe for concurrent use; per-session exclusion comes from SessionAccess.
type Interpreter struct {
	catalog  Catalog
	sessions SessionAccess
	exec     *Executor
	logger   *slog.Logger
}

// Option configures the Interpreter.
type Option func(*Interpreter)

// WithLanguageModel sets the client used by prompt steps.
func WithLanguageModel(llm ports.LanguageModelClient) Option {
	return func(i *Interpreter) {
		i.exec.llm = llm
	}
}

// WithGenerateOptions sets the completion options passed to the language model.
func WithGenerateOptions(opts ports.GenerateOptions) Option {
	return func(i *Interpreter) {
		i.exec.llmOptions = opts
	}
}

// WithToolInvoker sets the transport used by tool_api steps.
func WithToolInvoker(invoker ports.ToolInvoker) Option {
	return func(i *Interpreter) {
		i.exec.invoker = invoker
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(i *Interpreter) {
		i.exec.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// NewInterpreter creates an interpreter. Without a language model or tool
// invoker, prompt and tool_api steps produce deterministic mock results.
func NewInterpreter(catalog Catalog, sessions SessionAccess, opts ...Option) *Interpreter {
	i := &Interpreter{
		catalog:  catalog,
		sessions: sessions,
		exec:     &Executor{tools: catalog},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.exec.logger = i.logger
	i.exec.evaluator = NewEvaluator(i.logger)
	return i
}

// Run executes the named protocol against the session until an end step,
// the end of the step list, a failure, or cancellation of ctx.
//
// The returned result is never nil. Session data written by the steps that
// ran is persisted even when the run fails.
func (i *Interpreter) Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error) {
	result := &domain.ExecutionResult{
		ProtocolName:  protocolName,
		SessionID:     sessionID,
		StepsExecuted: []domain.StepOutcome{},
		StartedAt:     time.Now(),
	}

	err := i.run(ctx, protocolName, sessionID, result)

	result.FinishedAt = time.Now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		i.logger.Debug("Run failed",
			"protocol", protocolName,
			"session_id", sessionID,
			"failed_step", result.FailedStep,
			"err", err,
		)
	}
	return result, err
}

func (i *Interpreter) run(ctx context.Context, protocolName, sessionID string, result *domain.ExecutionResult) error {
	proto, err := i.catalog.Protocol(protocolName)
	if err != nil {
		return err
	}

	err = i.sessions.WithSession(ctx, sessionID, func(ctx context.Context, s *domain.Session) (domain.SessionPatch, error) {
		work := s.Clone()
		runErr := i.drive(ctx, proto, work, result)
		return diff(s, work), runErr
	})

	var nf *domain.NotFoundError
	if errors.Is(err, domain.ErrSessionNotFound) && !errors.As(err, &nf) {
		return &domain.NotFoundError{Kind: domain.KindSession, ID: sessionID}
	}
	return err
}

// drive is the step loop. It appends every outcome to result in execution order.
func (i *Interpreter) drive(ctx context.Context, proto *domain.Protocol, s *domain.Session, result *domain.ExecutionResult) error {
	executed := make(map[string]bool, len(proto.Steps))

	for idx := 0; idx < len(proto.Steps); {
		step := proto.Steps[idx]

		// Cancellation is honoured only between steps.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w before step %q: %w", domain.ErrCancelled, step.ID, err)
		}
		// Steps run at most once per run, whether reached by a jump or by falling through.
		if executed[step.ID] {
			result.FailedStep = step.ID
			return &domain.StepExecutionError{StepID: step.ID, Err: fmt.Errorf("%w: %q", domain.ErrStepRevisited, step.ID)}
		}
		executed[step.ID] = true

		i.exec.emitStepEnter(ctx, proto.Name, s.ID, step)
		outcome, err := i.exec.Execute(ctx, proto.Name, step, s)
		result.StepsExecuted = append(result.StepsExecuted, outcome)
		i.exec.emitStepLeave(ctx, proto.Name, s.ID, outcome)

		if err != nil {
			result.FailedStep = step.ID
			return &domain.StepExecutionError{StepID: step.ID, Err: err}
		}
		if step.Action == domain.ActionEnd {
			return nil
		}
		if v := outcomeValue(outcome); v != nil {
			result.FinalResult = v
		}

		next, err := nextIndex(proto, step, outcome, idx, executed)
		if err != nil {
			result.FailedStep = step.ID
			return &domain.StepExecutionError{StepID: step.ID, Err: err}
		}
		idx = next
	}
	return nil
}

// nextIndex picks the step that follows a successful step.
// A failed condition with an else_step branches there; otherwise next_step
// overrides declaration order.
func nextIndex(proto *domain.Protocol, step domain.Step, outcome domain.StepOutcome, idx int, executed map[string]bool) (int, error) {
	target := step.NextStep
	if step.Action == domain.ActionCondition && step.ElseStep != "" && outcome.Passed != nil && !*outcome.Passed {
		target = step.ElseStep
	}
	if target == "" {
		return idx + 1, nil
	}

	next, ok := proto.StepIndex(target)
	if !ok {
		return 0, &domain.NotFoundError{Kind: domain.KindStep, ID: target}
	}
	if executed[target] {
		return 0, fmt.Errorf("%w: %q", domain.ErrStepRevisited, target)
	}
	return next, nil
}

func outcomeValue(o domain.StepOutcome) any {
	switch o.Action {
	case domain.ActionPrompt:
		return o.Response
	case domain.ActionToolAPI:
		return o.Result
	case domain.ActionCondition:
		if o.Passed != nil {
			return *o.Passed
		}
	}
	return nil
}

// diff returns the changes made to work relative to orig.
func diff(orig, work *domain.Session) domain.SessionPatch {
	var patch domain.SessionPatch
	for k, v := range work.Data {
		if old, ok := orig.Data[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		if patch.Data == nil {
			patch.Data = make(map[string]any)
		}
		patch.Data[k] = v
	}
	if work.Active != orig.Active {
		active := work.Active
		patch.Active = &active
	}
	return patch
}
