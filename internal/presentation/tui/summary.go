package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// maxValueWidth truncates long step outputs in the summary table.
const maxValueWidth = 60

// ResultMarkdown renders an execution trace as a markdown report.
func ResultMarkdown(r *domain.ExecutionResult) string {
	var sb strings.Builder

	status := "success"
	if !r.Success {
		status = "failed"
	}
	fmt.Fprintf(&sb, "# %s\n\n", r.ProtocolName)
	fmt.Fprintf(&sb, "**Session:** `%s`  \n", r.SessionID)
	fmt.Fprintf(&sb, "**Status:** %s  \n", status)
	fmt.Fprintf(&sb, "**Duration:** %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.StepsExecuted) > 0 {
		sb.WriteString("| # | Step | Action | Result | Output |\n")
		sb.WriteString("|---|------|--------|--------|--------|\n")
		for i, o := range r.StepsExecuted {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n", i+1, o.StepID, o.Action, outcomeStatus(o), cell(outcomeText(o)))
		}
		sb.WriteString("\n")
	}

	if r.Error != "" {
		fmt.Fprintf(&sb, "> **Error** at `%s`: %s\n\n", r.FailedStep, r.Error)
	}
	if r.FinalResult != nil {
		fmt.Fprintf(&sb, "**Final result:** %s\n", cell(stringify(r.FinalResult)))
	}
	return sb.String()
}

func outcomeStatus(o domain.StepOutcome) string {
	switch {
	case !o.Success:
		return "✗"
	case o.Passed != nil && !*o.Passed:
		return "✓ (false)"
	case o.Fallback:
		return "✓ (mock)"
	}
	return "✓"
}

func outcomeText(o domain.StepOutcome) string {
	switch {
	case o.Error != "":
		return o.Error
	case o.Response != "":
		return o.Response
	case o.Result != nil:
		return stringify(o.Result)
	}
	return ""
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if r := []rune(s); len(r) > maxValueWidth {
		s = string(r[:maxValueWidth-1]) + "…"
	}
	return s
}
