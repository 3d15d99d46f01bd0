package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// Overlay marks steps of a run on the graph.
type Overlay struct {
	Executed   []string
	FailedStep string
}

// OverlayFromResult builds an overlay from an execution trace.
func OverlayFromResult(r *domain.ExecutionResult) *Overlay {
	if r == nil {
		return nil
	}
	return &Overlay{Executed: r.StepIDs(), FailedStep: r.FailedStep}
}

// GenerateMermaid produces a Mermaid flowchart of a protocol's control flow.
// Shapes follow the step action:
// - end: ((Circle))
// - tool_api: [[Subroutine]]
// - prompt: [/Parallelogram/]
// - condition: {Rhombus}
func GenerateMermaid(p domain.Protocol, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, step := range p.Steps {
		safeID := sanitizeMermaidID(step.ID)

		opener, closer := "[", "]"
		switch step.Action {
		case domain.ActionEnd:
			opener, closer = "((", "))"
		case domain.ActionToolAPI:
			opener, closer = "[[", "]]"
		case domain.ActionPrompt:
			opener, closer = "[/", "/]"
		case domain.ActionCondition:
			opener, closer = "{", "}"
		}

		label := step.ID
		if step.ToolRef != "" {
			label = fmt.Sprintf("%s <br/> %s", step.ID, step.ToolRef)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		if step.Action == domain.ActionEnd {
			continue
		}

		next := step.NextStep
		if next == "" && i+1 < len(p.Steps) {
			next = p.Steps[i+1].ID
		}

		if step.Action == domain.ActionCondition && step.ElseStep != "" {
			if next != "" {
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(describe(step.Conditions)), sanitizeMermaidID(next))
			}
			fmt.Fprintf(&sb, "    %s -. \"else\" .-> %s\n", safeID, sanitizeMermaidID(step.ElseStep))
			continue
		}
		if next != "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(next))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef executed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Executed {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] || id == overlay.FailedStep {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s executed;\n", safeID)
		}
		if overlay.FailedStep != "" {
			fmt.Fprintf(&sb, "    class %s failed;\n", sanitizeMermaidID(overlay.FailedStep))
		}
	}

	return sb.String()
}

func describe(conds []domain.Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s %s %v", c.Variable, c.Operator, c.Value)
	}
	return strings.Join(parts, " and ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
