package dsl

import (
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
)

// Builder manages protocol construction. Steps keep their declaration order.
type Builder struct {
	protocol domain.Protocol
	steps    []*StepBuilder
}

// New creates a new protocol builder.
func New(name string) *Builder {
	return &Builder{protocol: domain.Protocol{Name: name}}
}

// Describe sets the protocol description.
func (b *Builder) Describe(description string) *Builder {
	b.protocol.Description = description
	return b
}

// Add appends a step with the given action, or returns the existing builder
// for id so a step can be refined later.
func (b *Builder) Add(id string, action domain.Action) *StepBuilder {
	for _, sb := range b.steps {
		if sb.step.ID == id {
			return sb
		}
	}
	sb := &StepBuilder{step: domain.Step{ID: id, Action: action}, builder: b}
	b.steps = append(b.steps, sb)
	return sb
}

// Prompt appends a prompt step.
func (b *Builder) Prompt(id, prompt string) *StepBuilder {
	return b.Add(id, domain.ActionPrompt).Text(prompt)
}

// Tool appends a tool_api step calling toolRef.
func (b *Builder) Tool(id, toolRef string) *StepBuilder {
	sb := b.Add(id, domain.ActionToolAPI)
	sb.step.ToolRef = toolRef
	return sb
}

// Condition appends a condition step; add checks with Where.
func (b *Builder) Condition(id string) *StepBuilder {
	return b.Add(id, domain.ActionCondition)
}

// End appends an end step.
func (b *Builder) End(id string) *Builder {
	b.Add(id, domain.ActionEnd)
	return b
}

// Build validates and returns the protocol.
func (b *Builder) Build() (domain.Protocol, error) {
	p := b.protocol
	p.Steps = make([]domain.Step, 0, len(b.steps))
	for _, sb := range b.steps {
		p.Steps = append(p.Steps, sb.Build())
	}
	if err := p.Validate(); err != nil {
		return domain.Protocol{}, fmt.Errorf("failed to build protocol: %w", err)
	}
	for _, s := range p.Steps {
		for _, target := range []string{s.NextStep, s.ElseStep} {
			if target == "" {
				continue
			}
			if _, ok := p.StepIndex(target); !ok {
				return domain.Protocol{}, fmt.Errorf("failed to build protocol: step %q jumps to unknown step %q", s.ID, target)
			}
		}
	}
	return p, nil
}

// MustBuild is Build that panics on error. Intended for package-level protocol variables.
func (b *Builder) MustBuild() domain.Protocol {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
