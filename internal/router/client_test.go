package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := NewClient(url, "test-jwt", "agent-42")
	c.retryBase = time.Millisecond
	return c
}

func chatOK(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{
		"choices": [{"message": {"role": "assistant", "content": ` + jsonString(content) + `}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`))
}

func jsonString(s string) string {
	return `"` + s + `"`
}

func TestChatCompletionSuccess(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotAgent, gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("X-PAP-Agent-Id")
		gotRequestID = r.Header.Get("X-PAP-Request-Id")
		mu.Unlock()

		w.Header().Set("X-Request-Cost", "0.000125")
		w.Header().Set("X-Request-Latency-Ms", "840")
		w.Header().Set("X-Model-Provider", "openai")
		w.Header().Set("X-Cache-Status", "MISS")
		chatOK(w, "hello from the model")
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   2048,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello from the model", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, 0.000125, resp.Meta.Cost)
	assert.Equal(t, int64(840), resp.Meta.LatencyMS)
	assert.Equal(t, "openai", resp.Meta.Provider)
	assert.Equal(t, "MISS", resp.Meta.CacheStatus)

	assert.Equal(t, "Bearer test-jwt", gotAuth)
	assert.Equal(t, "agent-42", gotAgent)
	_, parseErr := uuid.Parse(gotRequestID)
	assert.NoError(t, parseErr, "request id should be a uuid, got %q", gotRequestID)
}

func TestChatCompletionAuthErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid token", "type": "auth"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, ErrorKindAuth, rerr.Kind)
	assert.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
	assert.Equal(t, "invalid token", rerr.Message)
	assert.False(t, rerr.Retryable())
	assert.Equal(t, 1, calls)
}

func TestChatCompletionBudgetErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {"message": "budget exhausted", "type": "billing"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, ErrorKindBudget, rerr.Kind)
	assert.False(t, rerr.Retryable())
	assert.Equal(t, 1, calls)
}

func TestChatCompletionRetriesTransportErrors(t *testing.T) {
	var calls int
	requestIDs := map[string]bool{}
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		requestIDs[r.Header.Get("X-PAP-Request-Id")] = true
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		chatOK(w, "third time lucky")
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", resp.Content)
	assert.Equal(t, 3, calls)
	assert.Len(t, requestIDs, 3, "each attempt should mint a fresh request id")
}

func TestChatCompletionRetryBudgetExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, ErrorKindTransport, rerr.Kind)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestChatCompletionRateLimitHonoursRetryAfter(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatOK(w, "after the wait")
	}))
	defer srv.Close()

	start := time.Now()
	resp, err := testClient(srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "after the wait", resp.Content)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, 2, calls)
}

func TestChatCompletionContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-jwt", "agent-42")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ChatCompletion(ctx, ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/models", r.URL.Path)
		require.Equal(t, "Bearer test-jwt", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o"}, {"id": "claude-sonnet"}, {"id": "gemini-pro"}]}`))
	}))
	defer srv.Close()

	models, err := testClient(srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "claude-sonnet", "gemini-pro"}, models)
}

func TestListModelsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "expired token", "type": "auth"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListModels(context.Background())
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, ErrorKindAuth, rerr.Kind)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("0"))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
}
