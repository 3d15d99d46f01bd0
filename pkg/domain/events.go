package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter  EventType = "step_enter"
	EventStepLeave  EventType = "step_leave"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         EventType `json:"type"`
	ProtocolName string    `json:"protocol_name"`
	SessionID    string    `json:"session_id"`
}

// StepEvent represents entry into or exit from a step.
type StepEvent struct {
	EventBase
	StepID string `json:"step_id"`
	Action Action `json:"action"`

	// Outcome is only set on leave events.
	Outcome *StepOutcome `json:"outcome,omitempty"`
}

// ToolEvent represents a tool invocation.
type ToolEvent struct {
	EventBase
	StepID  string `json:"step_id"`
	ToolID  string `json:"tool_id"`
	Input   any    `json:"input,omitempty"`
	Output  any    `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for interpreter observability.
// Any nil hook is skipped.
type LifecycleHooks struct {
	OnStepEnter  func(context.Context, *StepEvent)
	OnStepLeave  func(context.Context, *StepEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
}
