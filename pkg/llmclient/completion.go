package llmclient

import (
	"context"
	"fmt"
	"net/http"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type CompletionResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`
}

type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Complete sends one completion request. The call is rate limited, guarded by
// the circuit breaker and retried on transient failures; completions are
// never cached.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	var resp CompletionResponse
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.doRequest(ctx, http.MethodPost, "/v1/messages", req, &resp)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete: %w", err)
	}
	return &resp, nil
}

// ListModels lists the models available to the configured key. The list is
// served from cache when fresh.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if cached, ok := c.cache.Get("models"); ok {
		return cached.([]Model), nil
	}

	var models []Model
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.doRequest(ctx, http.MethodGet, "/v1/models", nil, &models)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	c.cache.Set("models", models)
	return models, nil
}
