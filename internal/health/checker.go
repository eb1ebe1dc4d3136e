package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is anything with a connectivity check, typically a store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component is the result of checking one dependency.
type Component struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the overall health of the service.
type Report struct {
	Status     Status      `json:"status"`
	Time       string      `json:"time"`
	Components []Component `json:"components"`
}

// Config holds health checker configuration.
type Config struct {
	// Stores are pinged and critical: a failed ping makes the service
	// unhealthy.
	Stores map[string]Pinger
	// LLMBaseURL is probed over HTTP when set. Failures only degrade.
	LLMBaseURL string

	DBTimeout          time.Duration
	HTTPTimeout        time.Duration
	MaxDatabaseLatency time.Duration
}

// Checker performs health checks on service dependencies.
type Checker struct {
	stores     map[string]Pinger
	llmBaseURL string
	client     *http.Client

	dbTimeout  time.Duration
	maxLatency time.Duration
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.DBTimeout == 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxDatabaseLatency == 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}
	return &Checker{
		stores:     cfg.Stores,
		llmBaseURL: cfg.LLMBaseURL,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		dbTimeout:  cfg.DBTimeout,
		maxLatency: cfg.MaxDatabaseLatency,
	}
}

// Check runs every configured check concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		components []Component
	)
	add := func(comp Component) {
		mu.Lock()
		components = append(components, comp)
		mu.Unlock()
	}
	for name, p := range c.stores {
		if p == nil {
			continue
		}
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			add(c.checkStore(ctx, name, p))
		}(name, p)
	}
	if c.llmBaseURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			add(c.checkHTTP(ctx, "llm_api", c.llmBaseURL))
		}()
	}
	wg.Wait()
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	return Report{
		Status:     overall(components),
		Time:       time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
}

func (c *Checker) checkStore(ctx context.Context, name string, p Pinger) Component {
	comp := Component{Name: name, Type: "database", Timestamp: time.Now()}
	ctx, cancel := context.WithTimeout(ctx, c.dbTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)
	comp.LatencyMS = latency.Milliseconds()
	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Database unreachable"
	case latency > c.maxLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

func (c *Checker) checkHTTP(ctx context.Context, name, url string) Component {
	comp := Component{Name: name, Type: "http", Timestamp: time.Now()}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		return comp
	}
	resp, err := c.client.Do(req)
	comp.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Endpoint unreachable"
		return comp
	}
	resp.Body.Close()
	// Any response means the upstream is up.
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

func overall(components []Component) Status {
	status := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if comp.Type == "database" {
				return StatusUnhealthy
			}
			status = StatusDegraded
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
