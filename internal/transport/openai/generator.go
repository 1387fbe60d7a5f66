package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/session"
	"github.com/vitae-cloud/profilex/internal/metrics"
)

// Generator produces chat answers via the OpenAI-compatible chat completion
// API. One attempt per message: the chat layer degrades on failure instead of
// retrying, so a slow provider never stalls a conversation.
type Generator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Generate answers from the assembled system prompt and conversation turns.
// All failures wrap domain.ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, turns []session.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", generationError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", fmt.Errorf("empty completion: %w", domain.ErrGenerationUnavailable)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

func generationError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrGenerationUnavailable)
	}
	return fmt.Errorf("completion request failed: %w: %w", domain.ErrGenerationUnavailable, err)
}
