package dsl

import "github.com/aretw0/cadence/pkg/domain"

// StepBuilder provides a fluent API for configuring a step.
// Every method returns the step builder except Then, which returns to the
// protocol builder so the next step can be declared.
type StepBuilder struct {
	step    domain.Step
	builder *Builder
}

// Text sets the prompt template.
func (s *StepBuilder) Text(prompt string) *StepBuilder {
	s.step.Prompt = prompt
	return s
}

// Where adds a condition checked by a condition step.
func (s *StepBuilder) Where(variable string, op domain.Operator, value any) *StepBuilder {
	s.step.Conditions = append(s.step.Conditions, domain.Condition{
		Variable: variable,
		Operator: op,
		Value:    value,
	})
	return s
}

// Go jumps to target after this step instead of the next declared step.
func (s *StepBuilder) Go(target string) *StepBuilder {
	s.step.NextStep = target
	return s
}

// Else sets the step taken when a condition step does not pass.
func (s *StepBuilder) Else(target string) *StepBuilder {
	s.step.ElseStep = target
	return s
}

// Then returns to the protocol builder.
func (s *StepBuilder) Then() *Builder {
	return s.builder
}

// Prompt, Tool, Condition and End chain straight into the next step.

func (s *StepBuilder) Prompt(id, prompt string) *StepBuilder { return s.builder.Prompt(id, prompt) }
func (s *StepBuilder) Tool(id, toolRef string) *StepBuilder  { return s.builder.Tool(id, toolRef) }
func (s *StepBuilder) Condition(id string) *StepBuilder      { return s.builder.Condition(id) }
func (s *StepBuilder) End(id string) *Builder                { return s.builder.End(id) }

// Build returns the underlying domain.Step.
func (s *StepBuilder) Build() domain.Step {
	step := s.step
	if step.Conditions != nil {
		step.Conditions = append([]domain.Condition(nil), step.Conditions...)
	}
	return step
}
