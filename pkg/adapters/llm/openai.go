package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/cadence/pkg/ports"
	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("model returned no text")

// OpenAIOptions are the defaults used by the OpenAI adapter.
type OpenAIOptions struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// OpenAI implements ports.LanguageModelClient with the Chat Completions API.
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
}

var _ ports.LanguageModelClient = (*OpenAI)(nil)

// NewOpenAI creates an adapter with its own client. Request options such as
// oaioption.WithAPIKey or oaioption.WithBaseURL are passed to the SDK.
func NewOpenAI(reqOpts []oaioption.RequestOption, optFns ...func(o *OpenAIOptions)) *OpenAI {
	client := openai.NewClient(reqOpts...)
	return NewOpenAIFromClient(&client, optFns...)
}

// NewOpenAIFromClient wraps an existing client.
func NewOpenAIFromClient(client *openai.Client, optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := OpenAIOptions{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAI{client: client, opts: opts}
}

// Generate sends prompt as a user message and returns the first choice.
func (m *OpenAI) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               firstNonEmpty(opts.Model, m.opts.Model),
		Temperature:         openai.Float(firstNonZero(opts.Temperature, m.opts.Temperature)),
		MaxCompletionTokens: openai.Int(firstNonZero(opts.MaxTokens, m.opts.MaxCompletionTokens)),
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero[T int64 | float64](a, b T) T {
	if a != 0 {
		return a
	}
	return b
}
