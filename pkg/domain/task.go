package domain

import "time"

// TaskStatus is the lifecycle state of a coordinated run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskRecord tracks one run submitted to the coordinator.
// Once the status is terminal, Result and Error never change.
type TaskRecord struct {
	TaskID       string            `json:"task_id"`
	ProtocolName string            `json:"protocol_name"`
	SessionID    string            `json:"session_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       TaskStatus        `json:"status"`
	Result       *ExecutionResult  `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// TaskStats aggregates coordinator counters.
// AvgExecutionTime is a running mean over completed tasks only.
type TaskStats struct {
	Created          int64         `json:"created"`
	Completed        int64         `json:"completed"`
	Failed           int64         `json:"failed"`
	Cancelled        int64         `json:"cancelled"`
	Running          int64         `json:"running"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
}
