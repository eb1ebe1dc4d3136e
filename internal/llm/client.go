// Package llm wraps a chat adapter with the sampling defaults used for
// persona replies and attribute generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soullink/fay-gateway/internal/adapter"
	"github.com/soullink/fay-gateway/internal/openai"
)

// ErrEmptyReply is returned when the upstream answer has no choices.
var ErrEmptyReply = errors.New("llm: upstream returned no choices")

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 200
)

// Completer is the synchronous LLM surface the rest of the service needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, messages []openai.ChatMessage) (string, error)
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client sends chat requests through an adapter.
type Client struct {
	adapter     adapter.ChatAdapter
	model       string
	temperature float64
	maxTokens   int
}

var _ Completer = (*Client)(nil)

// New returns a client backed by a.
func New(a adapter.ChatAdapter, opts Options) *Client {
	c := &Client{
		adapter:     a,
		model:       strings.TrimSpace(opts.Model),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

// Model returns the upstream model name.
func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []openai.ChatMessage{{Role: "user", Content: prompt}})
}

// Chat sends messages and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []openai.ChatMessage) (string, error) {
	return c.ChatWithLimit(ctx, messages, c.maxTokens)
}

// ChatWithLimit is Chat with an explicit max_tokens.
func (c *Client) ChatWithLimit(ctx context.Context, messages []openai.ChatMessage, maxTokens int) (string, error) {
	resp, err := c.adapter.CreateCompletion(ctx, c.request(messages, maxTokens))
	if err != nil {
		return "", fmt.Errorf("llm: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream relays the reply as chunks. Adapters without streaming support are
// answered with a single chunk holding the whole reply.
func (c *Client) Stream(ctx context.Context, messages []openai.ChatMessage, maxTokens int) (<-chan adapter.StreamEvent, error) {
	if sa, ok := c.adapter.(adapter.StreamingChatAdapter); ok {
		return sa.CreateCompletionStream(ctx, c.request(messages, maxTokens))
	}
	reply, err := c.ChatWithLimit(ctx, messages, maxTokens)
	if err != nil {
		return nil, err
	}
	ch := make(chan adapter.StreamEvent, 1)
	ch <- adapter.StreamEvent{Chunk: &openai.ChatCompletionChunk{
		Object:  "chat.completion.chunk",
		Model:   c.model,
		Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatMessageDelta{Content: reply}, FinishReason: openai.StopReason()}},
	}}
	close(ch)
	return ch, nil
}

func (c *Client) request(messages []openai.ChatMessage, maxTokens int) openai.ChatCompletionRequest {
	temperature := c.temperature
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}
