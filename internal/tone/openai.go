package tone

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// OpenAIOptions configures the OpenAI-backed completer.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// LangchainCompleter sends prompts to any langchaingo chat model.
type LangchainCompleter struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

// NewLangchainCompleter wraps an existing model.
func NewLangchainCompleter(llm llms.Model, maxTokens int, temperature float64) *LangchainCompleter {
	return &LangchainCompleter{llm: llm, maxTokens: maxTokens, temperature: temperature}
}

// NewOpenAICompleter builds a completer for the OpenAI chat completions API.
func NewOpenAICompleter(opts OpenAIOptions) (*LangchainCompleter, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}

	clientOpts := []openai.Option{
		openai.WithModel(opts.Model),
		openai.WithToken(opts.APIKey),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}

	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, err
	}
	return NewLangchainCompleter(llm, opts.MaxTokens, opts.Temperature), nil
}

// Complete sends a single chat completion request.
func (c *LangchainCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	callOptions := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, callOptions...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
