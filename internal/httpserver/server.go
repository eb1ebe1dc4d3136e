// Package httpserver exposes the digital human over HTTP: the
// OpenAI-compatible chat endpoints, the legacy panel endpoints, persona
// management and the operational probes.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/soullink/fay-gateway/internal/adapter"
	"github.com/soullink/fay-gateway/internal/assets"
	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/health"
	"github.com/soullink/fay-gateway/internal/httpserver/protocol"
	"github.com/soullink/fay-gateway/internal/interact"
	"github.com/soullink/fay-gateway/internal/metrics"
	"github.com/soullink/fay-gateway/internal/modelstore"
	"github.com/soullink/fay-gateway/internal/openai"
	"github.com/soullink/fay-gateway/internal/stream"
)

// DefaultRequestTimeout bounds non-streaming waits when none is configured.
const DefaultRequestTimeout = 120 * time.Second

// Dispatcher is the interaction surface the HTTP layer drives.
type Dispatcher interface {
	OnInteract(ctx context.Context, in interact.Interact) (string, error)
	Interrupt(username string)
	Awake(username string) bool
	Registry() stream.Registry
}

// LLM is the client used for persona generation and the direct LLM
// endpoints.
type LLM interface {
	Model() string
	Complete(ctx context.Context, prompt string) (string, error)
	ChatWithLimit(ctx context.Context, messages []openai.ChatMessage, maxTokens int) (string, error)
	Stream(ctx context.Context, messages []openai.ChatMessage, maxTokens int) (<-chan adapter.StreamEvent, error)
}

// QARecorder stores adopted answers.
type QARecorder interface {
	Record(question, answer string) error
}

// Config wires a Server. Only Dispatcher is required.
type Config struct {
	Dispatcher Dispatcher
	Content    content.Store
	Models     modelstore.Store
	Assets     *assets.Store
	QA         QARecorder
	LLM        LLM
	Health     *health.Checker
	Metrics    *metrics.Collector
	Logger     zerolog.Logger

	RequestTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	dispatcher Dispatcher
	registry   stream.Registry
	content    content.Store
	models     modelstore.Store
	assets     *assets.Store
	qa         QARecorder
	llm        LLM
	health     *health.Checker
	metrics    *metrics.Collector
	logger     zerolog.Logger

	requestTimeout time.Duration
	startedAt      time.Time
}

// New constructs a Server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("httpserver: dispatcher required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	return &Server{
		dispatcher:     cfg.Dispatcher,
		registry:       cfg.Dispatcher.Registry(),
		content:        cfg.Content,
		models:         cfg.Models,
		assets:         cfg.Assets,
		qa:             cfg.QA,
		llm:            cfg.LLM,
		health:         cfg.Health,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With().Str("component", "http").Logger(),
		requestTimeout: cfg.RequestTimeout,
		startedAt:      time.Now(),
	}, nil
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpoints(r,
		newOpenAIEndpoint(s),
		newInteractEndpoint(s),
		newMessageEndpoint(s),
		newModelEndpoint(s),
		newDirectLLMEndpoint(s),
		newHealthEndpoint(s),
	)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	return r
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		routes := ep.Routes()
		s.logger.Debug().Str("endpoint", ep.Name()).Int("routes", len(routes)).Msg("registering endpoint")
		for _, route := range routes {
			r.Method(route.Method, route.Path, s.instrument(route.Path, route.Handler))
		}
	}
}

// instrument records request counts and latency under the route pattern.
func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}
		s.metrics.RecordRequestStart(pattern)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordRequest(pattern, status, time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := s.logger.Info()
			if status >= http.StatusInternalServerError {
				ev = s.logger.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
