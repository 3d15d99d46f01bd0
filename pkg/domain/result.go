package domain

import "time"

// StepOutcome records what happened when a single step executed.
type StepOutcome struct {
	StepID  string `json:"step_id"`
	Action  Action `json:"action"`
	Success bool   `json:"success"`

	// Response is the text produced by a prompt step.
	Response string `json:"response,omitempty"`

	// Fallback is set when a prompt step used the deterministic mock response.
	Fallback bool `json:"fallback,omitempty"`

	// Result is the raw output of a tool_api step, or the evaluation summary of a condition step.
	Result any `json:"result,omitempty"`

	// Passed is the verdict of a condition step.
	Passed *bool `json:"passed,omitempty"`

	// Terminal is set by end steps.
	Terminal bool `json:"terminal,omitempty"`

	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionResult is the outcome record of one interpreter run.
// It is created fresh per run and never mutated after it is returned.
type ExecutionResult struct {
	ProtocolName  string        `json:"protocol_name"`
	SessionID     string        `json:"session_id"`
	StepsExecuted []StepOutcome `json:"steps_executed"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`

	// FailedStep is the id of the step that aborted the run, if any.
	FailedStep string `json:"failed_step,omitempty"`

	FinalResult any       `json:"final_result,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// StepIDs returns the ids of the executed steps in execution order.
func (r *ExecutionResult) StepIDs() []string {
	ids := make([]string, len(r.StepsExecuted))
	for i, o := range r.StepsExecuted {
		ids[i] = o.StepID
	}
	return ids
}
