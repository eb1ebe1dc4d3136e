package adapter

import (
	"context"

	"github.com/soullink/fay-gateway/internal/openai"
)

// ChatAdapter sends an OpenAI compatible chat request to an LLM provider.
type ChatAdapter interface {
	CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// StreamingChatAdapter is implemented by adapters that can relay upstream SSE.
type StreamingChatAdapter interface {
	ChatAdapter
	CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan StreamEvent, error)
}

// StreamEvent carries either a chunk or a terminal error. The zero value
// marks the end of the stream.
type StreamEvent struct {
	Chunk *openai.ChatCompletionChunk
	Error error
}

// IsError reports whether the event carries an error.
func (e StreamEvent) IsError() bool { return e.Error != nil }

// IsDone reports whether the event marks the end of the stream.
func (e StreamEvent) IsDone() bool { return e.Chunk == nil && e.Error == nil }
