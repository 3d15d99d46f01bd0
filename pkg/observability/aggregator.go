package observability

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// Aggregate combines several hook sets into one. Hooks run in the order given;
// nil callbacks are skipped.
func Aggregate(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var (
		enter  []func(context.Context, *domain.StepEvent)
		leave  []func(context.Context, *domain.StepEvent)
		call   []func(context.Context, *domain.ToolEvent)
		result []func(context.Context, *domain.ToolEvent)
	)
	for _, h := range hooks {
		enter = appendNonNil(enter, h.OnStepEnter)
		leave = appendNonNil(leave, h.OnStepLeave)
		call = appendNonNil(call, h.OnToolCall)
		result = appendNonNil(result, h.OnToolReturn)
	}
	return domain.LifecycleHooks{
		OnStepEnter:  fanOut(enter),
		OnStepLeave:  fanOut(leave),
		OnToolCall:   fanOut(call),
		OnToolReturn: fanOut(result),
	}
}

func appendNonNil[E any](fns []func(context.Context, E), fn func(context.Context, E)) []func(context.Context, E) {
	if fn == nil {
		return fns
	}
	return append(fns, fn)
}

func fanOut[E any](fns []func(context.Context, E)) func(context.Context, E) {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, e E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
