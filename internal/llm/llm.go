// Package llm talks to an OpenAI-compatible API for chat completions and
// embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/daviddao/mailagent/internal/config"
)

// Roles used in Message.Role.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 60 * time.Second

// ErrEmptyResponse is returned when the API answers without any choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteRequest describes a single completion. Zero values fall back to
// the client's configuration; Temperature < 0 means "use the default".
type CompleteRequest struct {
	Model       string
	System      string
	History     []Message
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client produces chat completions.
type Client interface {
	Complete(ctx context.Context, req CompleteRequest) (string, error)
}

// OpenAIClient implements Client with go-openai.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	log         zerolog.Logger
}

// New returns a chat client for cfg. The API key and model are required.
func New(cfg config.LLMConfig, logger zerolog.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: %w", config.ErrMissingAPIKey)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm: %w", config.ErrMissingModel)
	}

	return &OpenAIClient{
		api:         openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL)),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     DefaultTimeout,
		log:         logger.With().Str("component", "llm").Logger(),
	}, nil
}

func clientConfig(apiKey, baseURL string) openai.ClientConfig {
	c := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimRight(baseURL, "/"); baseURL != "" {
		c.BaseURL = baseURL
	}
	return c
}

// Model returns the default model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := c.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if req.Prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: RoleUser, Content: req.Prompt})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.log.Debug().
		Str("model", model).
		Int("messages", len(messages)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("took", time.Since(start)).
		Msg("chat completion")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
