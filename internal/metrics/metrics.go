package metrics

import (
	"sync"
	"time"
)

// Collector tracks service counters and renders them as Prometheus text.
type Collector struct {
	mu sync.RWMutex

	// HTTP, keyed by route pattern
	requests         map[string]int64
	requestDurations map[string]int64 // ms
	requestErrors    map[string]int64
	inProgress       map[string]int64

	// conversation flow
	interactions     map[string]int64 // by kind
	interruptions    int64
	discarded        map[string]int64 // by reason
	activeStreams    int64
	streamsCompleted int64
	qaHits           int64

	// generation
	generations       int64
	generationErrors  int64
	generationLatency int64 // ms

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		requests:         make(map[string]int64),
		requestDurations: make(map[string]int64),
		requestErrors:    make(map[string]int64),
		inProgress:       make(map[string]int64),
		interactions:     make(map[string]int64),
		discarded:        make(map[string]int64),
		startTime:        time.Now(),
	}
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress[endpoint]++
}

// RecordRequest closes a request started with RecordRequestStart.
func (c *Collector) RecordRequest(endpoint string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress[endpoint]--
	c.requests[endpoint]++
	c.requestDurations[endpoint] += duration.Milliseconds()
	if status >= 500 {
		c.requestErrors[endpoint]++
	}
}

// RecordInteraction counts a dispatched interaction.
func (c *Collector) RecordInteraction(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactions[kind]++
}

// RecordInterrupt counts a user interruption.
func (c *Collector) RecordInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interruptions++
}

// RecordDiscard counts a fragment a reader dropped.
func (c *Collector) RecordDiscard(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded[reason]++
}

// StreamStarted increments the active stream gauge.
func (c *Collector) StreamStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeStreams++
}

// StreamFinished decrements the active stream gauge.
func (c *Collector) StreamFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeStreams--
	c.streamsCompleted++
}

// RecordQAHit counts a reply served from the Q&A book.
func (c *Collector) RecordQAHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qaHits++
}

// RecordGeneration records one LLM call.
func (c *Collector) RecordGeneration(duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations++
	c.generationLatency += duration.Milliseconds()
	if err != nil {
		c.generationErrors++
	}
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Uptime            int64
	Requests          map[string]int64
	RequestDurations  map[string]int64
	RequestErrors     map[string]int64
	InProgress        map[string]int64
	Interactions      map[string]int64
	Interruptions     int64
	Discarded         map[string]int64
	ActiveStreams     int64
	StreamsCompleted  int64
	QAHits            int64
	Generations       int64
	GenerationErrors  int64
	GenerationLatency int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Uptime:            int64(time.Since(c.startTime).Seconds()),
		Requests:          copyMap(c.requests),
		RequestDurations:  copyMap(c.requestDurations),
		RequestErrors:     copyMap(c.requestErrors),
		InProgress:        copyMap(c.inProgress),
		Interactions:      copyMap(c.interactions),
		Interruptions:     c.interruptions,
		Discarded:         copyMap(c.discarded),
		ActiveStreams:     c.activeStreams,
		StreamsCompleted:  c.streamsCompleted,
		QAHits:            c.qaHits,
		Generations:       c.generations,
		GenerationErrors:  c.generationErrors,
		GenerationLatency: c.generationLatency,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
