// Package router picks the upstream backend for a chat request by model name.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soullink/fay-gateway/internal/adapter"
	"github.com/soullink/fay-gateway/internal/openai"
)

// ErrNoBackend is returned when no route matches and no fallback is set.
var ErrNoBackend = errors.New("router: no backend for model")

type route struct {
	pattern string
	backend string
}

// Router implements adapter.StreamingChatAdapter over named backends.
// Routes are tried in registration order; the fallback answers the rest.
type Router struct {
	mu       sync.RWMutex
	backends map[string]adapter.ChatAdapter
	routes   []route
	fallback string
}

var _ adapter.StreamingChatAdapter = (*Router)(nil)

// New returns an empty router.
func New() *Router {
	return &Router{backends: make(map[string]adapter.ChatAdapter)}
}

// Register adds a named backend. Registering a name twice replaces it.
func (r *Router) Register(name string, a adapter.ChatAdapter) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("router: backend name cannot be empty")
	}
	if a == nil {
		return errors.New("router: backend cannot be nil")
	}
	r.mu.Lock()
	r.backends[name] = a
	r.mu.Unlock()
	return nil
}

// Route sends models matching pattern to backend. Patterns are exact names
// or use a leading and/or trailing "*".
func (r *Router) Route(pattern, backend string) error {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return errors.New("router: model pattern cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[backend]; !ok {
		return fmt.Errorf("router: backend %q not registered", backend)
	}
	r.routes = append(r.routes, route{pattern: pattern, backend: backend})
	return nil
}

// SetFallback names the backend used when no route matches.
func (r *Router) SetFallback(backend string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[backend]; !ok {
		return fmt.Errorf("router: backend %q not registered", backend)
	}
	r.fallback = backend
	return nil
}

// Resolve returns the backend name serving model.
func (r *Router) Resolve(model string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model = strings.ToLower(strings.TrimSpace(model))
	for _, rt := range r.routes {
		if matchPattern(model, rt.pattern) {
			return rt.backend, nil
		}
	}
	if r.fallback != "" {
		return r.fallback, nil
	}
	return "", fmt.Errorf("%w %q", ErrNoBackend, model)
}

// Backends lists registered backend names.
func (r *Router) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

func (r *Router) pick(model string) (adapter.ChatAdapter, error) {
	name, err := r.Resolve(model)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	a := r.backends[name]
	r.mu.RUnlock()
	return a, nil
}

// CreateCompletion forwards req to the backend serving req.Model.
func (r *Router) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	a, err := r.pick(req.Model)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return a.CreateCompletion(ctx, req)
}

// CreateCompletionStream streams from the selected backend. Backends that
// cannot stream answer with one chunk carrying the whole reply.
func (r *Router) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	a, err := r.pick(req.Model)
	if err != nil {
		return nil, err
	}
	if sa, ok := a.(adapter.StreamingChatAdapter); ok {
		return sa.CreateCompletionStream(ctx, req)
	}
	resp, err := a.CreateCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	ch := make(chan adapter.StreamEvent, 1)
	ch <- adapter.StreamEvent{Chunk: &openai.ChatCompletionChunk{
		ID:      resp.ID,
		Object:  "chat.completion.chunk",
		Model:   resp.Model,
		Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatMessageDelta{Content: text}, FinishReason: openai.StopReason()}},
	}}
	close(ch)
	return ch, nil
}

func matchPattern(model, pattern string) bool {
	if model == pattern {
		return true
	}
	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	switch {
	case prefix && suffix:
		return strings.Contains(model, core)
	case suffix:
		return strings.HasPrefix(model, core)
	case prefix:
		return strings.HasSuffix(model, core)
	}
	return false
}
