package cadence_test

import (
	"context"
	"fmt"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/domain"
)

func Example() {
	ctx := context.Background()

	eng, err := cadence.New()
	if err != nil {
		panic(err)
	}
	defer eng.Shutdown(ctx)

	_ = eng.RegisterProtocol(domain.Protocol{
		Name: "onboarding",
		Steps: []domain.Step{
			{ID: "greet", Action: domain.ActionPrompt, Prompt: "Welcome, {name}!"},
			{
				ID:         "is_admin",
				Action:     domain.ActionCondition,
				Conditions: []domain.Condition{{Variable: "role", Operator: domain.OpEquals, Value: "admin"}},
				ElseStep:   "done",
			},
			{ID: "grant", Action: domain.ActionPrompt, Prompt: "Granting admin tools to {name}"},
			{ID: "done", Action: domain.ActionEnd},
		},
	})

	s, _ := eng.CreateSessionWithID(ctx, "example", "docs", 0, map[string]any{"name": "Ada", "role": "viewer"})

	res, _ := eng.Run(ctx, "onboarding", s.ID)
	fmt.Println(res.StepIDs())
	fmt.Println(res.StepsExecuted[0].Response)

	// Output:
	// [greet is_admin done]
	// mock response for: Welcome, Ada!
}
