package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// ValidateProtocol checks a registered-shape protocol for problems that would
// only surface at run time: dangling jumps, unknown tools and actions, and
// steps that no path reaches. knownTools may be nil to skip tool checks.
func ValidateProtocol(p domain.Protocol, knownTools map[string]bool) error {
	if err := p.Validate(); err != nil {
		return err
	}

	index := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		index[step.ID] = i
	}
	var errors []string

	for _, step := range p.Steps {
		if !step.Action.Valid() {
			errors = append(errors, fmt.Sprintf("Step '%s': unknown action '%s'", step.ID, step.Action))
		}
		if step.NextStep != "" {
			if _, ok := index[step.NextStep]; !ok {
				errors = append(errors, fmt.Sprintf("Step '%s': next_step points to missing step '%s'", step.ID, step.NextStep))
			}
		}
		if step.ElseStep != "" {
			if step.Action != domain.ActionCondition {
				errors = append(errors, fmt.Sprintf("Step '%s': else_step is only used by condition steps", step.ID))
			}
			if _, ok := index[step.ElseStep]; !ok {
				errors = append(errors, fmt.Sprintf("Step '%s': else_step points to missing step '%s'", step.ID, step.ElseStep))
			}
		}
		switch step.Action {
		case domain.ActionToolAPI:
			if step.ToolRef == "" {
				errors = append(errors, fmt.Sprintf("Step '%s': tool_api step without tool_ref", step.ID))
			} else if knownTools != nil && !knownTools[step.ToolRef] {
				errors = append(errors, fmt.Sprintf("Step '%s': unknown tool '%s'", step.ID, step.ToolRef))
			}
		case domain.ActionCondition:
			for _, c := range step.Conditions {
				if !c.Operator.Valid() {
					errors = append(errors, fmt.Sprintf("Step '%s': unknown operator '%s'", step.ID, c.Operator))
				}
			}
		}
	}

	for _, id := range unreachable(p, index) {
		errors = append(errors, fmt.Sprintf("Step '%s' is unreachable", id))
	}

	if len(errors) > 0 {
		return fmt.Errorf("protocol '%s': found %d errors:\n- %s", p.Name, len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

// unreachable crawls the flow from the first step and returns the ids never visited.
func unreachable(p domain.Protocol, index map[string]int) []string {
	visited := make(map[int]bool)
	queue := []int{0}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		step := p.Steps[current]
		if step.Action == domain.ActionEnd {
			continue
		}

		var targets []int
		if step.NextStep != "" {
			if i, ok := index[step.NextStep]; ok {
				targets = append(targets, i)
			}
		} else if current+1 < len(p.Steps) {
			targets = append(targets, current+1)
		}
		if step.ElseStep != "" {
			if i, ok := index[step.ElseStep]; ok {
				targets = append(targets, i)
			}
		}
		for _, t := range targets {
			if !visited[t] {
				queue = append(queue, t)
			}
		}
	}

	var ids []string
	for i, step := range p.Steps {
		if !visited[i] {
			ids = append(ids, step.ID)
		}
	}
	return ids
}
