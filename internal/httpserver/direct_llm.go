package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/soullink/fay-gateway/internal/openai"
)

const (
	directSystemPrompt = "You are a helpful AI assistant; answer directly and concisely."
	directMaxTokens    = 2000
)

type directLLMRequest struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
	System  string `json:"system"`
}

func (req directLLMRequest) messages() ([]openai.ChatMessage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		text = strings.TrimSpace(req.Prompt)
	}
	if text == "" {
		return nil, errors.New("message required")
	}
	system := strings.TrimSpace(req.System)
	if system == "" {
		system = directSystemPrompt
	}
	return []openai.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: text},
	}, nil
}

// handleDirectLLM asks the LLM once, outside any conversation.
func (s *Server) handleDirectLLM(w http.ResponseWriter, r *http.Request) {
	var req directLLMRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	msgs, err := req.messages()
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	reply, err := s.llm.ChatWithLimit(r.Context(), msgs, directMaxTokens)
	if err != nil {
		s.logger.Error().Err(err).Msg("direct llm failed")
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "reply": reply, "model": s.llm.Model()})
}

type directEvent struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"done"`
}

// handleDirectLLMStream relays the LLM stream as {content, done} events.
func (s *Server) handleDirectLLMStream(w http.ResponseWriter, r *http.Request) {
	var req directLLMRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	msgs, err := req.messages()
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	write := func(ev directEvent) {
		_, _ = io.WriteString(w, "data: ")
		_ = enc.Encode(ev)
		_, _ = io.WriteString(w, "\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	events, err := s.llm.Stream(r.Context(), msgs, directMaxTokens)
	if err != nil {
		write(directEvent{Error: err.Error(), Done: true})
		return
	}
	for ev := range events {
		if ev.IsError() {
			write(directEvent{Error: ev.Error.Error(), Done: true})
			// Drain so the producer goroutine can exit.
			for range events {
			}
			return
		}
		if ev.Chunk == nil {
			continue
		}
		if text := ev.Chunk.Delta().Content; text != "" {
			write(directEvent{Content: text})
		}
	}
	if r.Context().Err() != nil {
		return
	}
	write(directEvent{Done: true})
}
