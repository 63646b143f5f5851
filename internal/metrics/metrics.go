package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records draft cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records draft cache store attempts.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached draft.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no live cached draft was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the draft cache entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// Recorder publishes Prometheus metrics for orchestrator activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	generateRequests *prometheus.CounterVec
	generateLatency  *prometheus.HistogramVec

	upstreamAttempts *prometheus.CounterVec

	cacheOperations *prometheus.CounterVec

	admissionWait prometheus.Histogram
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	generateRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtdraft",
		Subsystem: "generate",
		Name:      "requests_total",
		Help:      "Total /generate requests processed by the orchestrator.",
	}, []string{"outcome", "status_code", "from_cache"})

	generateLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "courtdraft",
		Subsystem: "generate",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed /generate requests.",
		Buckets:   []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	upstreamAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtdraft",
		Subsystem: "upstream",
		Name:      "attempts_total",
		Help:      "Individual completion attempts issued against the upstream API.",
	}, []string{"model", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtdraft",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Draft cache operations executed by the orchestrator.",
	}, []string{"operation", "result"})

	admissionWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "courtdraft",
		Subsystem: "generate",
		Name:      "admission_wait_seconds",
		Help:      "Time callers spend waiting on single-flight admission.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
	})

	reg.MustRegister(generateRequests, generateLatency, upstreamAttempts, cacheOperations, admissionWait)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		generateRequests: generateRequests,
		generateLatency:  generateLatency,
		upstreamAttempts: upstreamAttempts,
		cacheOperations:  cacheOperations,
		admissionWait:    admissionWait,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveGenerate records the outcome and latency for a completed /generate
// request.
func (r *Recorder) ObserveGenerate(outcome string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.generateRequests.WithLabelValues(outcomeLabel, statusLabel, cacheLabel).Inc()
	r.generateLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveUpstreamAttempt records one completion attempt against a model.
func (r *Recorder) ObserveUpstreamAttempt(model, outcome string) {
	if r == nil {
		return
	}
	r.upstreamAttempts.WithLabelValues(normalizeLabel(model), normalizeLabel(outcome)).Inc()
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.cacheOperations.WithLabelValues(string(CacheOperationLookup), resultLabel).Inc()
}

// ObserveCacheStore records the result of a cache store attempt.
func (r *Recorder) ObserveCacheStore(result CacheStoreOutcome) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.cacheOperations.WithLabelValues(string(CacheOperationStore), resultLabel).Inc()
}

// ObserveAdmissionWait records how long a caller waited for single-flight
// admission before its generation began.
func (r *Recorder) ObserveAdmissionWait(duration time.Duration) {
	if r == nil {
		return
	}
	r.admissionWait.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
