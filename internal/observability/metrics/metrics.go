package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters for HTTP requests and stream bridge
// outcomes. It is safe for concurrent use.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	streamOutcomes  map[string]uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		streamOutcomes:  make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by packages that do not wire
// a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// StreamOutcome counts one terminal bridge outcome (ready, unauthorized,
// timed_out).
func (r *Recorder) StreamOutcome(outcome string) {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return
	}
	r.mu.Lock()
	r.streamOutcomes[outcome]++
	r.mu.Unlock()
}

// Handler serves the counters in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.mu.RLock()
		defer r.mu.RUnlock()

		fmt.Fprintln(w, "# HELP evercam_http_requests_total Total number of HTTP requests processed by the API")
		fmt.Fprintln(w, "# TYPE evercam_http_requests_total counter")
		for _, label := range r.sortedRequestLabels() {
			fmt.Fprintf(w, "evercam_http_requests_total{method=%q,path=%q,status=%q} %d\n",
				label.method, label.path, label.status, r.requestCount[label])
		}

		fmt.Fprintln(w, "# HELP evercam_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
		fmt.Fprintln(w, "# TYPE evercam_http_request_duration_seconds_sum counter")
		for _, label := range r.sortedRequestLabels() {
			fmt.Fprintf(w, "evercam_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n",
				label.method, label.path, label.status, r.requestDuration[label].Seconds())
		}

		fmt.Fprintln(w, "# HELP evercam_stream_outcomes_total Stream bridge terminal outcomes by type")
		fmt.Fprintln(w, "# TYPE evercam_stream_outcomes_total counter")
		for _, outcome := range r.sortedOutcomes() {
			fmt.Fprintf(w, "evercam_stream_outcomes_total{outcome=%q} %d\n", outcome, r.streamOutcomes[outcome])
		}
	})
}

// RequestSnapshot reports the request count for a method/path/status triple,
// primarily for tests.
func (r *Recorder) RequestSnapshot(method, path string, status int) uint64 {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requestCount[label]
}

// OutcomeSnapshot reports the counter for one stream outcome.
func (r *Recorder) OutcomeSnapshot(outcome string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streamOutcomes[outcome]
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedOutcomes() []string {
	outcomes := make([]string, 0, len(r.streamOutcomes))
	for outcome := range r.streamOutcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	return outcomes
}

// normalizePath collapses camera identifiers and artifact file names so the
// label set stays bounded.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" || part == "live" || part == "hls" || strings.HasPrefix(part, "v1") {
			continue
		}
		if strings.Contains(part, ".") || len(part) >= 8 {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}
