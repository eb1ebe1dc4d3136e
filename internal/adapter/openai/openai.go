package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/soullink/fay-gateway/internal/adapter"
	"github.com/soullink/fay-gateway/internal/openai"
)

// Ensure OpenAIAdapter implements StreamingChatAdapter.
var _ adapter.StreamingChatAdapter = (*OpenAIAdapter)(nil)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultRetryInterval   = 500 * time.Millisecond
	defaultRetryMaxElapsed = 30 * time.Second
)

// OpenAIAdapter sends requests to an OpenAI compatible chat API.
type OpenAIAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	org        string // optional organization ID

	maxRetries    int
	retryInterval time.Duration
}

// Config holds configuration for the OpenAI adapter.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Organization   string // optional
	RequestTimeout time.Duration
	// MaxRetries bounds retries of 429 and 5xx answers. Zero disables retries.
	MaxRetries int
	// RetryInterval is the first backoff interval.
	RetryInterval time.Duration
}

// New creates an OpenAIAdapter instance.
func New(cfg Config) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	return &OpenAIAdapter{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		org:           cfg.Organization,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    cfg.MaxRetries,
		retryInterval: interval,
	}, nil
}

// BaseURL returns the upstream base URL in use.
func (a *OpenAIAdapter) BaseURL() string { return a.baseURL }

// CreateCompletion sends a chat completion request, retrying transient failures.
func (a *OpenAIAdapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("openai: no messages provided")
	}
	body, err := json.Marshal(upstreamPayload(req, false))
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	var completion openai.ChatCompletionResponse
	op := func() error {
		resp, err := a.post(ctx, body, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openai: read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return classify(resp.StatusCode, upstreamError(resp.StatusCode, respBody))
		}
		if err := json.Unmarshal(respBody, &completion); err != nil {
			return backoff.Permanent(fmt.Errorf("openai: unmarshal response: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(op, a.retryPolicy(ctx)); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return completion, nil
}

// CreateCompletionStream opens an upstream SSE stream and relays its chunks.
// The channel is closed after the upstream [DONE] marker, an error event, or
// ctx cancellation.
func (a *OpenAIAdapter) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: no messages provided")
	}
	body, err := json.Marshal(upstreamPayload(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	var resp *http.Response
	op := func() error {
		r, err := a.post(ctx, body, true)
		if err != nil {
			return err
		}
		if r.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(r.Body)
			r.Body.Close()
			return classify(r.StatusCode, upstreamError(r.StatusCode, respBody))
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, a.retryPolicy(ctx)); err != nil {
		return nil, err
	}

	ch := make(chan adapter.StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		emit := func(ev adapter.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		err := readSSE(resp.Body, func(data string) (bool, error) {
			if data == "[DONE]" {
				return false, nil
			}
			var chunk openai.ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return false, fmt.Errorf("openai: parse chunk: %w", err)
			}
			return emit(adapter.StreamEvent{Chunk: &chunk}), nil
		})
		if err == nil && ctx.Err() != nil {
			err = fmt.Errorf("openai: stream aborted: %w", ctx.Err())
		}
		if err != nil {
			emit(adapter.StreamEvent{Error: err})
		}
	}()
	return ch, nil
}

func (a *OpenAIAdapter) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("openai: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if a.org != "" {
		httpReq.Header.Set("OpenAI-Organization", a.org)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("openai: send request: %w", err))
		}
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	return resp, nil
}

func (a *OpenAIAdapter) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.retryInterval
	b.MaxElapsedTime = defaultRetryMaxElapsed
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(a.maxRetries, 0))), ctx)
}

func upstreamPayload(req openai.ChatCompletionRequest, stream bool) map[string]interface{} {
	payload := map[string]interface{}{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   stream,
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		payload["max_tokens"] = *req.MaxTokens
	}
	return payload
}

// classify marks non-retryable upstream answers as permanent.
func classify(status int, err error) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return err
	}
	return backoff.Permanent(err)
}

func upstreamError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("openai: %s (type=%s, code=%s)", errResp.Error.Message, errResp.Error.Type, errResp.Error.Code)
	}
	return fmt.Errorf("openai: http %d: %s", status, string(body))
}
