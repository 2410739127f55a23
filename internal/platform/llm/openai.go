// Package llm provides the text-generation capability used to polish appeal
// letters. It is an OpenAI-compatible chat completions client; any endpoint
// speaking that protocol can be targeted through the base URL.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNotConfigured is returned when no API key has been supplied.
var ErrNotConfigured = errors.New("llm: api key not configured")

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator sends a system and a user message to a chat completions
// endpoint and returns the first choice's text.
type OpenAIGenerator struct {
	model  string
	client *openai.Client
}

func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	g := &OpenAIGenerator{model: strings.TrimSpace(cfg.Model)}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return g
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		// The caller owns the single-attempt policy.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	g.client = &client
	return g
}

// Configured reports whether a client has been built.
func (g *OpenAIGenerator) Configured() bool {
	return g != nil && g.client != nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
