package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyReply is returned when the API answers without any choice
var ErrEmptyReply = errors.New("no response from model")

// Config holds the settings of one chat completion model
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements port.TextOracle and port.VisionOracle on top of the
// chat completions API. Any OpenAI compatible endpoint works through BaseURL.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewClient creates a chat completion client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With(zap.String("model", cfg.Model)),
	}
}

// Complete sends a system instruction and a prompt, returning the raw reply
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.create(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

// Describe sends a prompt with one inline image, returning the raw reply
func (c *Client) Describe(ctx context.Context, system, prompt string, img port.Image) (string, error) {
	mime := img.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		},
		{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		},
	}

	c.logger.Debug("Sending image to vision model", zap.Int("size_bytes", len(img.Data)))
	return c.create(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	})
}

func (c *Client) create(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages:    messages,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("Chat completion failed", zap.Error(err))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	c.logger.Debug("Chat completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

var (
	_ port.TextOracle   = (*Client)(nil)
	_ port.VisionOracle = (*Client)(nil)
)
