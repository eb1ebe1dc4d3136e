package httpserver

import (
	"io"
	"net/http"
	"time"

	"github.com/soullink/fay-gateway/internal/health"
	"github.com/soullink/fay-gateway/internal/metrics"
)

// HandleHealth reports component health. Unhealthy answers 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.respondJSON(w, http.StatusOK, health.Report{
			Status:     health.StatusHealthy,
			Time:       time.Now().UTC().Format(time.RFC3339),
			Components: []health.Component{},
		})
		return
	}
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, report)
}

// HandleMetrics renders the collector in Prometheus text format.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, metrics.FormatPrometheus(s.metrics.GetSnapshot()))
}
