package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/internal/models"
)

// OpenAIGenerator produces answers through the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey      string
	Model       string // e.g. gpt-4o-mini
	Temperature float64
	MaxTokens   int
}

// NewOpenAIGenerator creates a generator backed by the OpenAI API.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   maxTokens,
	}, nil
}

// Generate sends the system prompt, context, history, and question as one
// chat completion request.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("%s\n\nContext:\n%s", system, req.Context),
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return nil, classifyGenerateErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned: %w", models.ErrGeneration)
	}
	return &Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classifyGenerateErr maps provider errors onto the error taxonomy the same
// way the embedding client does.
func classifyGenerateErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("openai chat: %v: %w", err, models.ErrUnavailable)
		}
		return fmt.Errorf("openai chat: %v: %w", err, models.ErrGeneration)
	}
	return fmt.Errorf("openai chat: %v: %w", err, models.ErrUnavailable)
}

// Close is a no-op for OpenAIGenerator.
func (g *OpenAIGenerator) Close() error {
	return nil
}
