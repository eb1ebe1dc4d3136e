package loopback

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/soullink/fay-gateway/internal/adapter"
	"github.com/soullink/fay-gateway/internal/openai"
)

// Ensure LoopbackAdapter implements StreamingChatAdapter.
var _ adapter.StreamingChatAdapter = (*LoopbackAdapter)(nil)

// LoopbackAdapter echoes the last user message back to the caller. It stands
// in for a real provider when no API key is configured.
type LoopbackAdapter struct{}

// New creates a LoopbackAdapter instance.
func New() *LoopbackAdapter {
	return &LoopbackAdapter{}
}

// CreateCompletion fabricates a deterministic completion.
func (a *LoopbackAdapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	reply, err := echo(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	usage := openai.NewUsage(promptChars(req), utf8.RuneCountInString(reply.Content))
	return openai.NewCompletionResponse(req.Model, reply, usage), nil
}

// CreateCompletionStream emits the echoed reply one word at a time.
func (a *LoopbackAdapter) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	reply, err := echo(req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(reply.Content, " ")
	ch := make(chan adapter.StreamEvent)
	go func() {
		defer close(ch)
		for i, w := range words {
			chunk := &openai.ChatCompletionChunk{
				ID:      "cmpl-loopback",
				Object:  "chat.completion.chunk",
				Model:   req.Model,
				Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatMessageDelta{Content: w}}},
			}
			if i == len(words)-1 {
				chunk.Choices[0].FinishReason = openai.StopReason()
			}
			select {
			case ch <- adapter.StreamEvent{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func echo(req openai.ChatCompletionRequest) (openai.ChatMessage, error) {
	if len(req.Messages) == 0 {
		return openai.ChatMessage{}, errors.New("no messages provided")
	}
	// find last user message; default to final message if none
	message := req.Messages[len(req.Messages)-1]
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if strings.ToLower(req.Messages[i].Role) == "user" {
			message = req.Messages[i]
			break
		}
	}
	return openai.ChatMessage{
		Role:    "assistant",
		Content: "[loopback] " + strings.TrimSpace(message.Content),
	}, nil
}

func promptChars(req openai.ChatCompletionRequest) int {
	n := 0
	for _, m := range req.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}
