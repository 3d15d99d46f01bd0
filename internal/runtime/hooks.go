package runtime

import (
	"context"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

func (e *Executor) emitStepEnter(ctx context.Context, protocolName, sessionID string, step domain.Step) {
	if e.hooks.OnStepEnter == nil {
		return
	}
	e.hooks.OnStepEnter(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{
			Timestamp:    time.Now(),
			Type:         domain.EventStepEnter,
			ProtocolName: protocolName,
			SessionID:    sessionID,
		},
		StepID: step.ID,
		Action: step.Action,
	})
}

func (e *Executor) emitStepLeave(ctx context.Context, protocolName, sessionID string, outcome domain.StepOutcome) {
	if e.hooks.OnStepLeave == nil {
		return
	}
	e.hooks.OnStepLeave(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{
			Timestamp:    time.Now(),
			Type:         domain.EventStepLeave,
			ProtocolName: protocolName,
			SessionID:    sessionID,
		},
		StepID:  outcome.StepID,
		Action:  outcome.Action,
		Outcome: &outcome,
	})
}

func (e *Executor) emitToolCall(ctx context.Context, protocolName, sessionID, stepID, toolID string, input any) {
	if e.hooks.OnToolCall == nil {
		return
	}
	e.hooks.OnToolCall(ctx, &domain.ToolEvent{
		EventBase: domain.EventBase{
			Timestamp:    time.Now(),
			Type:         domain.EventToolCall,
			ProtocolName: protocolName,
			SessionID:    sessionID,
		},
		StepID: stepID,
		ToolID: toolID,
		Input:  input,
	})
}

func (e *Executor) emitToolReturn(ctx context.Context, protocolName, sessionID, stepID, toolID string, output any, isError bool) {
	if e.hooks.OnToolReturn == nil {
		return
	}
	e.hooks.OnToolReturn(ctx, &domain.ToolEvent{
		EventBase: domain.EventBase{
			Timestamp:    time.Now(),
			Type:         domain.EventToolReturn,
			ProtocolName: protocolName,
			SessionID:    sessionID,
		},
		StepID:  stepID,
		ToolID:  toolID,
		Output:  output,
		IsError: isError,
	})
}
