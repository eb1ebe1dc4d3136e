package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/soullink/fay-gateway/internal/interact"
	"github.com/soullink/fay-gateway/internal/openai"
	"github.com/soullink/fay-gateway/internal/stream"
)

const noContent = "No content provided"

// HandleChatCompletions is the public entry point registered on the router.
func (s *Server) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.handleChatCompletions(w, r)
}

// HandleModels lists the fixed fay models.
func (s *Server) HandleModels(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, openai.NewModelsResponse(s.startedAt.Unix()))
}

// usernameFromRole maps the OpenAI role of the last message to a user.
func usernameFromRole(role string) string {
	if role == "user" {
		return stream.DefaultUsername
	}
	return stream.NormalizeUsername(role)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()
	var req openai.ChatCompletionRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	last, ok := req.LastMessage()
	if !ok {
		s.respondError(w, http.StatusBadRequest, errors.New("messages must not be empty"))
		return
	}
	username := usernameFromRole(last.Role)
	message := last.Content
	if strings.TrimSpace(message) == "" {
		message = noContent
	}

	cid, err := s.dispatcher.OnInteract(r.Context(), interact.Interact{
		Kind:        interact.KindText,
		Username:    username,
		Message:     message,
		Observation: req.Observation,
		PureMode:    req.PureMode,
	})
	if err != nil {
		s.respondError(w, dispatchStatus(err), err)
		return
	}

	t := turnStream{
		username: username,
		cid:      cid,
		prompt:   utf8.RuneCountInString(message),
		start:    reqStart,
	}
	t.reader, t.captured = s.registry.Subscribe(username)
	if req.Stream || req.Model == openai.ModelFayStreaming {
		s.streamReply(w, r, t)
		return
	}
	s.completeReply(w, r, t)
}

// turnStream is one consumer of a conversation.
type turnStream struct {
	username string
	cid      string
	// captured is the id current when the reader was opened. It differs from
	// cid when a newer interaction already replaced this one.
	captured string
	reader   *stream.Reader
	prompt   int
	start    time.Time
}

func (t turnStream) superseded() bool { return t.captured != t.cid }

func (s *Server) filter(t turnStream) stream.Filter {
	return stream.Filter{
		ConversationID: t.cid,
		Current:        func() string { return s.registry.ConversationID(t.username) },
		OnDiscard: func(f stream.Fragment, reason error) {
			if errors.Is(reason, stream.ErrMalformedFragment) {
				s.metrics.RecordDiscard("malformed")
				s.logger.Debug().Str("user", t.username).Str("text", f.Text).Msg("dropped malformed fragment")
				return
			}
			s.metrics.RecordDiscard("stale")
		},
	}
}

// interruptIfCurrent stops the producer of t unless a newer interaction
// already owns the user.
func (s *Server) interruptIfCurrent(t turnStream) {
	if s.registry.ConversationID(t.username) == t.cid {
		s.dispatcher.Interrupt(t.username)
	}
}

type streamError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// streamChunk renders one fragment as an SSE chunk. Usage counts characters;
// the prompt is charged on the fragment flagged IsFirst.
func streamChunk(id string, created int64, f stream.Fragment, prompt int) openai.ChatCompletionChunk {
	n := utf8.RuneCountInString(f.Text)
	charged := 0
	if f.IsFirst {
		charged = prompt
	}
	chunk := openai.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   openai.ModelFayStreaming,
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatMessageDelta{Content: f.Text},
			Index: 0,
		}},
		Usage: &openai.UsageBreakdown{
			PromptTokens:     charged,
			CompletionTokens: n,
			TotalTokens:      prompt + n,
		},
	}
	if f.IsEnd {
		chunk.Choices[0].FinishReason = openai.StopReason()
	}
	return chunk
}

func (s *Server) streamReply(w http.ResponseWriter, r *http.Request, t turnStream) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	writeEvent := func(payload any) error {
		_, _ = io.WriteString(w, "data: ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		flush()
		return err
	}

	id := "faystreaming-" + uuid.NewString()
	created := time.Now().Unix()
	var (
		firstAt time.Time
		chars   int
	)
	var err error
	if t.superseded() {
		err = stream.ErrSuperseded
	} else {
		err = stream.Follow(r.Context(), t.reader, s.filter(t), func(f stream.Fragment) error {
			if f.Err != "" {
				return writeEvent(map[string]any{"error": streamError{Message: f.Err, Type: "upstream_error"}})
			}
			if firstAt.IsZero() && f.Text != "" {
				firstAt = time.Now()
			}
			chunk := streamChunk(id, created, f, t.prompt)
			chars += chunk.Usage.CompletionTokens
			return writeEvent(chunk)
		})
	}

	switch {
	case err == nil, errors.Is(err, stream.ErrSuperseded):
	case r.Context().Err() != nil:
		s.interruptIfCurrent(t)
		s.logger.Info().Str("user", t.username).Str("conversation_id", t.cid).Msg("client disconnected, interrupted")
		return
	default:
		_ = writeEvent(map[string]any{"error": streamError{Message: err.Error(), Type: "stream_error"}})
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flush()

	ttfb := time.Duration(0)
	if !firstAt.IsZero() {
		ttfb = firstAt.Sub(t.start)
	}
	s.logger.Info().
		Int64("total_ms", time.Since(t.start).Milliseconds()).
		Int64("ttfb_ms", ttfb.Milliseconds()).
		Str("user", t.username).
		Str("conversation_id", t.cid).
		Int("chars", chars).
		Bool("superseded", errors.Is(err, stream.ErrSuperseded)).
		Msg("chat.completions.stream")
}

func (s *Server) completeReply(w http.ResponseWriter, r *http.Request, t turnStream) {
	var (
		res stream.Result
		err error
	)
	if !t.superseded() {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		res, err = stream.Collect(ctx, t.reader, s.filter(t))
		cancel()
	}
	switch {
	case err == nil, errors.Is(err, stream.ErrSuperseded):
	case r.Context().Err() != nil:
		s.interruptIfCurrent(t)
		return
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, errors.New("timed out waiting for reply"))
		return
	default:
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if res.Err != "" {
		s.respondError(w, http.StatusBadGateway, errors.New(res.Err))
		return
	}

	completion := utf8.RuneCountInString(res.Text)
	resp := openai.ChatCompletionResponse{
		ID:      "fay-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   openai.ModelFay,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatMessage{Role: "assistant", Content: res.Text},
			Logprobs:     "",
			FinishReason: "stop",
		}},
		Usage: openai.NewUsage(t.prompt, completion),
	}
	s.respondJSON(w, http.StatusOK, resp)
	s.logger.Info().
		Int64("total_ms", time.Since(t.start).Milliseconds()).
		Str("user", t.username).
		Str("conversation_id", t.cid).
		Int("chars", completion).
		Bool("qa", res.IsQA).
		Msg("chat.completions")
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, interact.ErrEmptyMessage), errors.Is(err, interact.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, interact.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
