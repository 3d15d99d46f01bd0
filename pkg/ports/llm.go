package ports

import "context"

// GenerateOptions tunes a single completion request.
// Zero values leave the client's defaults in place.
type GenerateOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int64
}

// LanguageModelClient completes prompts for prompt steps.
type LanguageModelClient interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
