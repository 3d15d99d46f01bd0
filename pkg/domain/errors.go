package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	// ErrSessionExists is returned when creating a session with an id already in use.
	ErrSessionExists = errors.New("session already exists")

	// ErrDuplicateTask rejects a submission whose task id is already tracked.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrCoordinatorClosed is returned by submissions after shutdown.
	ErrCoordinatorClosed = errors.New("coordinator is shut down")

	// ErrCancelled marks a run that stopped because cancellation was requested.
	ErrCancelled = errors.New("run cancelled")

	// ErrStepRevisited marks a flow that tried to execute a step twice in one run.
	ErrStepRevisited = errors.New("step already executed in this run")
)

// Kinds of entities reported by NotFoundError.
const (
	KindProtocol = "protocol"
	KindSession  = "session"
	KindTool     = "tool"
	KindStep     = "step"
	KindTask     = "task"
)

// NotFoundError reports an unknown protocol, session, tool, step or task reference.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is match ErrNotFound, and ErrSessionNotFound for sessions.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	return target == ErrSessionNotFound && e.Kind == KindSession
}

// UnknownActionError is returned for a step whose action is not one of the known kinds.
type UnknownActionError struct {
	StepID string
	Action Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("step %q has unknown action %q", e.StepID, e.Action)
}

// ToolInvocationError wraps a transport, timeout or non-2xx failure of a tool call.
type ToolInvocationError struct {
	StepID string
	ToolID string
	Cause  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q failed in step %q: %v", e.ToolID, e.StepID, e.Cause)
}

func (e *ToolInvocationError) Unwrap() error { return e.Cause }

// StepExecutionError attributes a fatal error to the step that produced it.
type StepExecutionError struct {
	StepID string
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q: %v", e.StepID, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }
