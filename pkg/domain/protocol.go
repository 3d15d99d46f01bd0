package domain

import (
	"errors"
	"fmt"
)

// Action is the closed set of step kinds the interpreter knows how to execute.
type Action string

const (
	// ActionPrompt sends a resolved prompt to the language model.
	ActionPrompt Action = "prompt"
	// ActionToolAPI invokes an external tool referenced by ToolRef.
	ActionToolAPI Action = "tool_api"
	// ActionCondition evaluates the step's conditions against session data.
	ActionCondition Action = "condition"
	// ActionEnd marks the session inactive and stops the run.
	ActionEnd Action = "end"
)

// Valid reports whether the action is one of the four known kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionPrompt, ActionToolAPI, ActionCondition, ActionEnd:
		return true
	}
	return false
}

// Operator is the comparison applied by a Condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Valid reports whether the operator is one the evaluator understands.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is a stateless comparison between a session variable and a literal.
type Condition struct {
	Variable string   `json:"variable" yaml:"variable" mapstructure:"variable"`
	Operator Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value    any      `json:"value" yaml:"value" mapstructure:"value"`
}

// Step is a single unit of protocol execution.
type Step struct {
	ID         string      `json:"id" yaml:"id" mapstructure:"id"`
	Action     Action      `json:"action" yaml:"action" mapstructure:"action"`
	Prompt     string      `json:"prompt,omitempty" yaml:"prompt,omitempty" mapstructure:"prompt"`
	ToolRef    string      `json:"tool_ref,omitempty" yaml:"tool_ref,omitempty" mapstructure:"tool_ref"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" mapstructure:"conditions"`

	// NextStep overrides declaration order after this step succeeds.
	NextStep string `json:"next_step,omitempty" yaml:"next_step,omitempty" mapstructure:"next_step"`

	// ElseStep is taken by a condition step whose conditions do not hold.
	ElseStep string `json:"else_step,omitempty" yaml:"else_step,omitempty" mapstructure:"else_step"`
}

// Protocol is a named, ordered sequence of steps.
type Protocol struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Steps       []Step `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// ErrInvalidProtocol is returned when a protocol definition is structurally unusable.
var ErrInvalidProtocol = errors.New("invalid protocol")

// Validate checks the structural invariants of the protocol: a name, at least
// one step, and unique non-empty step ids.
// Unknown actions are NOT rejected here; they fail the run that reaches them.
func (p *Protocol) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProtocol)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: protocol %q has no steps", ErrInvalidProtocol, p.Name)
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: protocol %q step #%d has no id", ErrInvalidProtocol, p.Name, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: protocol %q has duplicate step id %q", ErrInvalidProtocol, p.Name, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// StepIndex returns the declaration index of the step with the given id.
func (p *Protocol) StepIndex(id string) (int, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy of the protocol's step list and conditions.
func (p *Protocol) Clone() *Protocol {
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	for i, step := range p.Steps {
		if step.Conditions != nil {
			step.Conditions = append([]Condition(nil), step.Conditions...)
		}
		cp.Steps[i] = step
	}
	return &cp
}
