package domain

// ToolDefinition describes an external HTTP-callable action.
// Endpoint, header values and string parameters may contain placeholders
// that are resolved against session data on every invocation.
type ToolDefinition struct {
	ID         string            `json:"id" yaml:"id" mapstructure:"id"`
	Endpoint   string            `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Method     string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	Parameters map[string]any    `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`

	// ResultPath optionally selects a sub-value of a JSON response (gjson syntax).
	ResultPath string `json:"result_path,omitempty" yaml:"result_path,omitempty" mapstructure:"result_path"`
}

// DefaultToolMethod is used when a definition leaves Method empty.
const DefaultToolMethod = "GET"
