package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestResultMarkdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	passed := false
	r := &domain.ExecutionResult{
		ProtocolName: "onboarding",
		SessionID:    "s1",
		StepsExecuted: []domain.StepOutcome{
			{StepID: "greet", Action: domain.ActionPrompt, Success: true, Response: "Hello | world", Fallback: true},
			{StepID: "check", Action: domain.ActionCondition, Success: true, Passed: &passed},
			{StepID: "call", Action: domain.ActionToolAPI, Error: "boom"},
		},
		Error:      "step \"call\": boom",
		FailedStep: "call",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	md := ResultMarkdown(r)
	assert.Contains(t, md, "# onboarding")
	assert.Contains(t, md, "**Status:** failed")
	assert.Contains(t, md, "1.5s")
	assert.Contains(t, md, "| 1 | greet | prompt | ✓ (mock) | Hello \\| world |")
	assert.Contains(t, md, "| 2 | check | condition | ✓ (false) |")
	assert.Contains(t, md, "| 3 | call | tool_api | ✗ | boom |")
	assert.Contains(t, md, "**Error** at `call`")
}

func TestCell_Truncates(t *testing.T) {
	got := cell(strings.Repeat("x", 100))
	assert.Equal(t, maxValueWidth, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestRenderer_ProducesOutput(t *testing.T) {
	out, err := NewRenderer()("# Title\n\nbody")
	assert.NoError(t, err)
	assert.Contains(t, out, "Title")
}
