package ports

import "context"

// ToolRequest is a fully resolved tool invocation.
type ToolRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Params  map[string]any    `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ToolResponse is the outcome of a successful invocation.
type ToolResponse struct {
	StatusCode int `json:"status_code"`

	// Body is the decoded response: JSON values when the payload is JSON, a string otherwise.
	Body any `json:"body"`

	// Raw is the undecoded payload, used for result path extraction.
	Raw []byte `json:"-"`
}

// ToolInvoker performs the external call behind a tool_api step.
// Network errors, timeouts and non-2xx statuses are returned as errors.
type ToolInvoker interface {
	Invoke(ctx context.Context, req ToolRequest) (*ToolResponse, error)
}
