package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "claude-sonnet-4-5",
		Timeout:    5 * time.Second,
		RetryCount: 2,
		RetryDelay: time.Millisecond,
		RateLimit:  600,
		RateBurst:  10,
		CacheTTL:   time.Minute,
		CacheSize:  10,
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// The configured default model is filled in when the request omits it.
		assert.Equal(t, "claude-sonnet-4-5", req.Model)

		json.NewEncoder(w).Encode(CompletionResponse{
			ID:         "msg-1",
			Model:      req.Model,
			Content:    `{"classification":"idea"}`,
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", resp.ID)
	assert.Equal(t, `{"classification":"idea"}`, resp.Content)
}

func TestClient_Complete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(CompletionResponse{ID: "msg-1", Content: "ok"})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_Complete_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":"invalid_request","message":"bad payload"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_ListModels_Cached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/models", r.URL.Path)
		json.NewEncoder(w).Encode([]Model{{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5"}})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	for i := 0; i < 2; i++ {
		models, err := client.ListModels(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.Equal(t, "claude-sonnet-4-5", models[0].ID)
	}
	assert.EqualValues(t, 1, calls.Load(), "second lookup is served from cache")
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{Status: 429}, true},
		{"server error", &APIError{Status: 500}, true},
		{"bad gateway", &APIError{Status: 502}, true},
		{"bad request", &APIError{Status: 400}, false},
		{"unauthorized", &APIError{Status: 401}, false},
		{"transport failure", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Retryable(tc.err))
		})
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}
	err := policy.Do(ctx, func() error { return errors.New("always failing") })

	assert.ErrorIs(t, err, context.Canceled)
}
