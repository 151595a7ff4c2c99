package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/metrics"
)

// ChatConfig holds completion settings on top of the shared provider config.
type ChatConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// Chat is a chat completion client for OpenAI-compatible APIs.
type Chat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewChat creates a chat completion client.
func NewChat(cfg *ChatConfig) *Chat {
	return &Chat{
		client:      newClient(&cfg.Config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      loggerOrNop(cfg.Logger),
	}
}

// Stream sends msgs and forwards every non-empty content delta to onDelta.
// Provider failures wrap domain.ErrLLMFailed; an onDelta error is returned as is.
func (c *Chat) Stream(ctx context.Context, msgs []domain.ChatMessage, onDelta func(string) error) error {
	start := time.Now()

	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(msgs, true))
	if err != nil {
		c.record("stream", "error", start)
		return parseAPIError("chat", err, domain.ErrLLMFailed)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.record("stream", "success", start)
			return nil
		}
		if err != nil {
			c.record("stream", "error", start)
			c.logger.Warn("chat stream interrupted", zap.String("model", c.model), zap.Error(err))
			return parseAPIError("chat", err, domain.ErrLLMFailed)
		}

		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			metrics.LLMDeltasTotal.WithLabelValues(c.model).Inc()
			if err := onDelta(choice.Delta.Content); err != nil {
				c.record("stream", "aborted", start)
				return err
			}
		}
	}
}

// Complete sends msgs and returns the whole reply.
func (c *Chat) Complete(ctx context.Context, msgs []domain.ChatMessage) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.request(msgs, false))
	if err != nil {
		c.record("complete", "error", start)
		return "", parseAPIError("chat", err, domain.ErrLLMFailed)
	}
	if len(resp.Choices) == 0 {
		c.record("complete", "error", start)
		return "", fmt.Errorf("empty completion response: %w", domain.ErrLLMFailed)
	}

	c.record("complete", "success", start)
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels.
func (c *Chat) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Chat) request(msgs []domain.ChatMessage, stream bool) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    out,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
}

func (c *Chat) record(mode, status string, start time.Time) {
	metrics.LLMRequestsTotal.WithLabelValues(c.model, mode, status).Inc()
	if status == "success" {
		metrics.LLMRequestDuration.WithLabelValues(c.model, mode).Observe(time.Since(start).Seconds())
	}
}
