package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	antoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/cadence/pkg/ports"
)

// AnthropicOptions are the defaults used by the Anthropic adapter.
type AnthropicOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Anthropic implements ports.LanguageModelClient with the Messages API.
type Anthropic struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

var _ ports.LanguageModelClient = (*Anthropic)(nil)

// NewAnthropic creates an adapter with its own client.
func NewAnthropic(reqOpts []antoption.RequestOption, optFns ...func(o *AnthropicOptions)) *Anthropic {
	client := anthropic.NewClient(reqOpts...)
	return NewAnthropicFromClient(&client, optFns...)
}

// NewAnthropicFromClient wraps an existing client.
func NewAnthropicFromClient(client *anthropic.Client, optFns ...func(o *AnthropicOptions)) *Anthropic {
	opts := AnthropicOptions{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Anthropic{client: client, opts: opts}
}

// Generate sends prompt as a user message and joins the text blocks of the reply.
func (m *Anthropic) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(firstNonEmpty(opts.Model, m.opts.Model)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   firstNonZero(opts.MaxTokens, m.opts.MaxTokens),
		Temperature: anthropic.Float(firstNonZero(opts.Temperature, m.opts.Temperature)),
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
