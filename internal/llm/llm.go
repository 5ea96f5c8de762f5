// Package llm wraps an OpenAI-compatible completion API behind a single-call
// gateway, plus best-effort parsing of the structured replies it returns.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrNoCredential is returned when no API key is configured.
	ErrNoCredential = errors.New("completion api key is not configured")
	// ErrEmptyPrompt is returned for blank prompts, before any network call.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrEmptyCompletion is returned when the service replies without content.
	ErrEmptyCompletion = errors.New("completion returned no content")
)

// Client wraps an OpenAI-compatible API client. A single attempt per call:
// no retry, no backoff, no streaming.
type Client struct {
	api   *openai.Client
	model string
	key   string
}

// New creates a gateway client. An empty apiKey yields a client whose calls
// fail fast with ErrNoCredential.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		key:   apiKey,
	}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool { return c.key != "" }

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrNoCredential
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Complete sends one prompt and returns the full completion text. modelID
// overrides the default model when non-empty.
func (c *Client) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if !c.Configured() {
		return "", ErrNoCredential
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	m := c.model
	if modelID != "" {
		m = modelID
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	slog.Debug("completion received", "model", m, "chars", len(content))
	return content, nil
}
