package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/teamauresta/agent-harbor/internal/domain"
)

// DefaultTemperature matches the conversational tone tuning used in production.
const DefaultTemperature = 0.7

// ErrNoChoices is returned when the completion API returns an empty choice list.
var ErrNoChoices = errors.New("no completion choices returned")

// ChatAPI defines the interface for chat completion calls
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient generates responses from a system prompt plus conversation
// history via an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	api         ChatAPI
	model       string
	temperature float32
}

// ChatConfig configures a ChatClient.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// NewChatClient creates a ChatClient.
func NewChatClient(cfg ChatConfig) *ChatClient {
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	return &ChatClient{
		api:         newAPIClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: temperature,
	}
}

// Generate runs one chat completion: system prompt first, then the full
// conversation history in order. Exactly one attempt; retries belong to the
// caller and must be idempotent at the send boundary.
func (c *ChatClient) Generate(ctx context.Context, systemPrompt string, history []domain.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAgent {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}
