// Package router is the HTTP client for the model router, the single
// OpenAI-compatible upstream every model call goes through.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// maxRetries bounds retries after the first attempt. Only rate-limit and
	// transport failures are retried.
	maxRetries = 2

	defaultTimeout = 60 * time.Second
)

// Client talks to the model router. All requests carry the agent's JWT and
// platform tracking headers; a fresh request id is minted per attempt.
type Client struct {
	baseURL string
	token   string
	agentID string
	client  *http.Client

	// retryBase scales the linear backoff; shortened in tests.
	retryBase time.Duration
}

// NewClient creates a router client. baseURL is the router root without the
// /v1 suffix.
func NewClient(baseURL, token, agentID string) *Client {
	return &Client{
		baseURL:   baseURL,
		token:     token,
		agentID:   agentID,
		client:    &http.Client{Timeout: defaultTimeout},
		retryBase: time.Second,
	}
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion call against one model.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallMeta carries the billing and routing headers the router attaches to
// every successful response. Fields are zero-valued when a header is absent.
type CallMeta struct {
	Cost        float64
	LatencyMS   int64
	Provider    string
	CacheStatus string
}

// ChatResponse is the parsed result of a chat completion call.
type ChatResponse struct {
	Content string
	Usage   Usage
	Meta    CallMeta
}

type chatWireResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ChatCompletion runs one chat completion through the router. Rate-limit and
// transport failures are retried up to maxRetries times with a linear backoff
// of attempt seconds; a Retry-After hint from the router overrides the
// backoff. Auth and budget failures return immediately.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var lastErr *Error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryBase
			if lastErr.Kind == ErrorKindRateLimit && lastErr.RetryAfter > 0 {
				delay = lastErr.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, rerr := c.do(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
		if rerr != nil {
			lastErr = rerr
			if !rerr.Retryable() {
				return nil, rerr
			}
			continue
		}
		return resp, nil
	}

	return nil, lastErr
}

// ListModels returns the model ids the router exposes to this agent.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(ErrorKindTransport, 0, err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp)
	}

	var wire struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, newError(ErrorKindTransport, resp.StatusCode, "decoding models list: "+err.Error(), err)
	}

	models := make([]string, len(wire.Data))
	for i, m := range wire.Data {
		models[i] = m.ID
	}
	return models, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*ChatResponse, *Error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, newError(ErrorKindTransport, 0, err.Error(), err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(ErrorKindTransport, 0, err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp)
	}

	var wire chatWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, newError(ErrorKindTransport, resp.StatusCode, "decoding response: "+err.Error(), err)
	}
	if len(wire.Choices) == 0 {
		return nil, newError(ErrorKindTransport, resp.StatusCode, "no choices in response", nil)
	}

	return &ChatResponse{
		Content: wire.Choices[0].Message.Content,
		Usage:   wire.Usage,
		Meta:    parseMeta(resp.Header),
	}, nil
}

// setHeaders attaches auth and platform tracking headers. The request id is
// minted fresh for every attempt so retries are distinguishable upstream.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-PAP-Agent-Id", c.agentID)
	req.Header.Set("X-PAP-Request-Id", uuid.NewString())
}

func (c *Client) classifyError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := string(body)
	var wire chatWireResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != nil {
		message = wire.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return newError(ErrorKindAuth, resp.StatusCode, message, nil)
	case resp.StatusCode == http.StatusPaymentRequired:
		return newError(ErrorKindBudget, resp.StatusCode, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := newError(ErrorKindRateLimit, resp.StatusCode, message, nil)
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return e
	default:
		return newError(ErrorKindTransport, resp.StatusCode, message, nil)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func parseMeta(header http.Header) CallMeta {
	meta := CallMeta{
		Provider:    header.Get("X-Model-Provider"),
		CacheStatus: header.Get("X-Cache-Status"),
	}
	if v := header.Get("X-Request-Cost"); v != "" {
		if cost, err := strconv.ParseFloat(v, 64); err == nil {
			meta.Cost = cost
		}
	}
	if v := header.Get("X-Request-Latency-Ms"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			meta.LatencyMS = ms
		}
	}
	return meta
}

// String implements fmt.Stringer for log lines.
func (m CallMeta) String() string {
	return fmt.Sprintf("cost=%.6f latency_ms=%d provider=%s cache=%s", m.Cost, m.LatencyMS, m.Provider, m.CacheStatus)
}
