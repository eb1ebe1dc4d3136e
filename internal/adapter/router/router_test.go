package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soullink/fay-gateway/internal/adapter/loopback"
	"github.com/soullink/fay-gateway/internal/openai"
)

type stubBackend struct {
	name string
	err  error
}

func (s *stubBackend) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		ID:    "resp-" + s.name,
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatMessage{Role: "assistant", Content: "from " + s.name},
		}},
	}, nil
}

func request(model string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:    model,
		Messages: []openai.ChatMessage{{Role: "user", Content: "hi"}},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	assert.Error(t, r.Register("", &stubBackend{}))
	assert.Error(t, r.Register("x", nil))
	assert.Error(t, r.Route("gpt-*", "missing"))
	assert.Error(t, r.SetFallback("missing"))

	require.NoError(t, r.Register("openai", &stubBackend{name: "openai"}))
	assert.Error(t, r.Route(" ", "openai"))
	assert.Equal(t, []string{"openai"}, r.Backends())
}

func TestResolveOrderAndFallback(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("openai", &stubBackend{name: "openai"}))
	require.NoError(t, r.Register("local", &stubBackend{name: "local"}))
	require.NoError(t, r.Route("gpt-4o-mini", "local"))
	require.NoError(t, r.Route("gpt-*", "openai"))

	cases := map[string]string{
		"gpt-4o-mini": "local",
		"GPT-4o":      "openai",
	}
	for model, want := range cases {
		got, err := r.Resolve(model)
		require.NoError(t, err, model)
		assert.Equal(t, want, got, model)
	}

	_, err := r.Resolve("qwen-max")
	assert.ErrorIs(t, err, ErrNoBackend)

	require.NoError(t, r.SetFallback("local"))
	got, err := r.Resolve("qwen-max")
	require.NoError(t, err)
	assert.Equal(t, "local", got)
}

func TestCreateCompletionForwards(t *testing.T) {
	r := New()
	boom := errors.New("upstream down")
	require.NoError(t, r.Register("ok", &stubBackend{name: "ok"}))
	require.NoError(t, r.Register("bad", &stubBackend{name: "bad", err: boom}))
	require.NoError(t, r.Route("*-bad", "bad"))
	require.NoError(t, r.SetFallback("ok"))

	resp, err := r.CreateCompletion(context.Background(), request("any"))
	require.NoError(t, err)
	assert.Equal(t, "resp-ok", resp.ID)

	_, err = r.CreateCompletion(context.Background(), request("model-bad"))
	assert.ErrorIs(t, err, boom)
}

func TestStreamWrapsNonStreamingBackend(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("plain", &stubBackend{name: "plain"}))
	require.NoError(t, r.SetFallback("plain"))

	events, err := r.CreateCompletionStream(context.Background(), request("m"))
	require.NoError(t, err)
	var chunks []string
	for ev := range events {
		require.False(t, ev.IsError())
		chunks = append(chunks, ev.Chunk.Delta().Content)
	}
	assert.Equal(t, []string{"from plain"}, chunks)
}

func TestStreamUsesStreamingBackend(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("loopback", loopback.New()))
	require.NoError(t, r.SetFallback("loopback"))

	events, err := r.CreateCompletionStream(context.Background(), request("m"))
	require.NoError(t, err)
	var text string
	for ev := range events {
		require.False(t, ev.IsError())
		if ev.Chunk != nil {
			text += ev.Chunk.Delta().Content
		}
	}
	assert.Contains(t, text, "hi")
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		model, pattern string
		want           bool
	}{
		{"gpt-4", "gpt-4", true},
		{"gpt-4", "gpt-*", true},
		{"gpt-3.5-turbo", "*-turbo", true},
		{"qwen-turbo-latest", "*turbo*", true},
		{"claude-3", "gpt-*", false},
		{"gpt-4", "gpt-3", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchPattern(tc.model, tc.pattern), "%s ~ %s", tc.model, tc.pattern)
	}
}
