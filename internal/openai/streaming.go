package openai

// ChatCompletionChunk represents a chunk in an SSE streaming response.
type ChatCompletionChunk struct {
	ID                string                      `json:"id"`
	Object            string                      `json:"object"`
	Created           int64                       `json:"created"`
	Model             string                      `json:"model"`
	Choices           []ChatCompletionChunkChoice `json:"choices"`
	Usage             *UsageBreakdown             `json:"usage,omitempty"`
	SystemFingerprint string                      `json:"system_fingerprint"`
}

// ChatCompletionChunkChoice represents a choice in a streaming chunk.
type ChatCompletionChunkChoice struct {
	Delta        ChatMessageDelta `json:"delta"`
	Index        int              `json:"index"`
	FinishReason *string          `json:"finish_reason"`
}

// ChatMessageDelta is the incremental content of a chunk. Content is always
// present on the wire, even when empty.
type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// Delta returns the first choice's delta.
func (c *ChatCompletionChunk) Delta() ChatMessageDelta {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta
	}
	return ChatMessageDelta{}
}

// FinishReason returns the first choice's finish reason, nil while streaming.
func (c *ChatCompletionChunk) FinishReason() *string {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason
	}
	return nil
}

// StopReason is the finish reason set on terminal chunks.
func StopReason() *string {
	s := "stop"
	return &s
}
