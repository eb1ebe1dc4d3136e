package openai

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestChunkKeepsEmptyContentAndNullFinish(t *testing.T) {
	chunk := ChatCompletionChunk{
		ID:      "faystreaming-x",
		Object:  "chat.completion.chunk",
		Model:   ModelFayStreaming,
		Choices: []ChatCompletionChunkChoice{{Delta: ChatMessageDelta{Content: ""}}},
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"delta":{"content":""}`, `"finish_reason":null`, `"system_fingerprint":""`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"usage"`) {
		t.Fatalf("usage should be omitted when unset: %s", s)
	}
}

func TestRequestDecodesDigitalHumanFields(t *testing.T) {
	var req ChatCompletionRequest
	body := `{"model":"fay","messages":[{"role":"user","content":"hi"}],"pure_mode":true,"observation":"smiling"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.PureMode || req.Observation != "smiling" {
		t.Fatalf("unexpected request %#v", req)
	}
	last, ok := req.LastMessage()
	if !ok || last.Content != "hi" {
		t.Fatalf("unexpected last message %#v", last)
	}
	if u := NewUsage(2, 3); u.TotalTokens != 5 {
		t.Fatalf("unexpected usage %#v", u)
	}
}
