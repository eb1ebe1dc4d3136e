package openai

import (
	"time"

	"github.com/google/uuid"
)

// ChatCompletionRequest captures the request fields the gateway understands,
// including the digital human extensions pure_mode and observation.
type ChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []ChatMessage     `json:"messages"`
	Stream      bool              `json:"stream,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PureMode    bool              `json:"pure_mode,omitempty"`
	Observation string            `json:"observation,omitempty"`
}

// ChatMessage follows OpenAI's role/content schema (plain text only).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse mirrors the OpenAI schema with a single choice.
type ChatCompletionResponse struct {
	ID                string                 `json:"id"`
	Object            string                 `json:"object"`
	Created           int64                  `json:"created"`
	Model             string                 `json:"model"`
	Choices           []ChatCompletionChoice `json:"choices"`
	Usage             UsageBreakdown         `json:"usage"`
	SystemFingerprint string                 `json:"system_fingerprint"`
}

// ChatCompletionChoice contains the generated message.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	Logprobs     interface{} `json:"logprobs"`
	FinishReason string      `json:"finish_reason"`
}

// UsageBreakdown provides token accounting. The gateway fills it with
// character counts, which only approximate tokens.
type UsageBreakdown struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a usage block from prompt and completion sizes.
func NewUsage(prompt, completion int) UsageBreakdown {
	return UsageBreakdown{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// NewCompletionResponse builds a finished single-choice response.
func NewCompletionResponse(model string, message ChatMessage, usage UsageBreakdown) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      message,
		}},
		Usage: usage,
	}
}

// LastMessage returns the final message of the request, if any.
func (r ChatCompletionRequest) LastMessage() (ChatMessage, bool) {
	if len(r.Messages) == 0 {
		return ChatMessage{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}
