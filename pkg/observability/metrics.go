package observability

import (
	"context"
	"errors"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// StepMetrics counts executed steps and tool calls.
type StepMetrics struct {
	steps *prometheus.CounterVec
	tools *prometheus.CounterVec
}

// MustNewStepMetrics registers the step collectors on reg, reusing any that
// are already registered.
func MustNewStepMetrics(reg prometheus.Registerer) *StepMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "interpreter",
		Name:      "steps_total",
		Help:      "Steps executed, by protocol, action and outcome.",
	}, []string{"protocol", "action", "outcome"})
	tools := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "interpreter",
		Name:      "tool_calls_total",
		Help:      "Tool invocations, by tool and outcome.",
	}, []string{"tool", "outcome"})

	return &StepMetrics{
		steps: register(reg, steps),
		tools: register(reg, tools),
	}
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *StepMetrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) {
			m.steps.WithLabelValues(e.ProtocolName, string(e.Action), stepOutcome(e.Outcome)).Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			outcome := "success"
			if e.IsError {
				outcome = "error"
			}
			m.tools.WithLabelValues(e.ToolID, outcome).Inc()
		},
	}
}

func stepOutcome(o *domain.StepOutcome) string {
	switch {
	case o == nil || !o.Success:
		return "error"
	case o.Passed != nil && !*o.Passed:
		return "else"
	}
	return "success"
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
