package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	scalar(&sb, "fay_uptime_seconds", "gauge", "Time since the service started", snap.Uptime)
	labeled(&sb, "fay_requests_total", "counter", "Total HTTP requests by endpoint", "endpoint", snap.Requests, false)
	labeled(&sb, "fay_request_errors_total", "counter", "Total HTTP 5xx responses by endpoint", "endpoint", snap.RequestErrors, false)
	labeled(&sb, "fay_requests_in_progress", "gauge", "Requests currently being served", "endpoint", snap.InProgress, true)
	labeled(&sb, "fay_request_duration_ms_total", "counter", "Total request duration in milliseconds", "endpoint", snap.RequestDurations, false)

	labeled(&sb, "fay_interactions_total", "counter", "Interactions dispatched by kind", "kind", snap.Interactions, false)
	scalar(&sb, "fay_interruptions_total", "counter", "User interruptions", snap.Interruptions)
	labeled(&sb, "fay_fragments_discarded_total", "counter", "Fragments dropped by readers", "reason", snap.Discarded, false)
	scalar(&sb, "fay_streams_active", "gauge", "Responses currently relaying fragments", snap.ActiveStreams)
	scalar(&sb, "fay_streams_completed_total", "counter", "Responses that finished relaying", snap.StreamsCompleted)
	scalar(&sb, "fay_qa_hits_total", "counter", "Replies answered from the Q&A book", snap.QAHits)

	scalar(&sb, "fay_generations_total", "counter", "LLM generations", snap.Generations)
	scalar(&sb, "fay_generation_errors_total", "counter", "Failed LLM generations", snap.GenerationErrors)
	scalar(&sb, "fay_generation_latency_ms_total", "counter", "Total LLM latency in milliseconds", snap.GenerationLatency)

	return sb.String()
}

func scalar(sb *strings.Builder, name, kind, help string, v int64) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, v)
}

func labeled(sb *strings.Builder, name, kind, help, label string, m map[string]int64, positiveOnly bool) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	for _, k := range sortedKeys(m) {
		if positiveOnly && m[k] <= 0 {
			continue
		}
		fmt.Fprintf(sb, "%s{%s=%q} %d\n", name, label, k, m[k])
	}
	sb.WriteString("\n")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
