package observability_test

import (
	"context"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_CallsInOrder(t *testing.T) {
	var calls []string
	record := func(name string) func(context.Context, *domain.StepEvent) {
		return func(context.Context, *domain.StepEvent) { calls = append(calls, name) }
	}

	hooks := observability.Aggregate(
		domain.LifecycleHooks{OnStepEnter: record("a")},
		domain.LifecycleHooks{},
		domain.LifecycleHooks{OnStepEnter: record("b"), OnStepLeave: record("leave")},
	)

	hooks.OnStepEnter(context.Background(), &domain.StepEvent{})
	hooks.OnStepLeave(context.Background(), &domain.StepEvent{})

	assert.Equal(t, []string{"a", "b", "leave"}, calls)
	assert.Nil(t, hooks.OnToolCall, "no callbacks means a nil hook")
}

func TestStepMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := observability.MustNewStepMetrics(reg).Hooks()
	ctx := context.Background()

	failed := false
	leave := func(action domain.Action, outcome *domain.StepOutcome) {
		hooks.OnStepLeave(ctx, &domain.StepEvent{
			EventBase: domain.EventBase{ProtocolName: "p"},
			Action:    action,
			Outcome:   outcome,
		})
	}
	leave(domain.ActionPrompt, &domain.StepOutcome{Success: true})
	leave(domain.ActionCondition, &domain.StepOutcome{Success: true, Passed: &failed})
	leave(domain.ActionToolAPI, &domain.StepOutcome{Success: false})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolID: "weather", IsError: true})

	steps, err := testutil.GatherAndCount(reg, "cadence_interpreter_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	tools, err := testutil.GatherAndCount(reg, "cadence_interpreter_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, tools)

	// Registering again reuses the existing collectors.
	assert.NotPanics(t, func() { observability.MustNewStepMetrics(reg) })
}
