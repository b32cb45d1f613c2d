// Package metrics defines the Prometheus registry and per-subsystem metric
// structs for the search coordinator, circuit breaker, and cache (per-adapter
// outcomes are counted by the coordinator's metrics), following the registry-scoped newXMetrics(reg) convention.
package metrics

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "catalogfed"

// New creates a new Prometheus registry with default collectors already
// registered.
func New() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// patternRE strips all "{...}" path-param segments from a route pattern
// to build a stable label value.
var patternRE = regexp.MustCompile(`\{[^/]+\}`)

// normalizePattern derives the constant label from the route pattern:
//
//	"/search/{searchId}" → "/search"
//	"/libraries"         → "/libraries"
func normalizePattern(pattern string) string {
	p := patternRE.ReplaceAllString(pattern, "")
	p = strings.TrimSuffix(p, "/")
	p = strings.ReplaceAll(p, "//", "/")
	return p
}

// Instrument wraps an HTTP handler to record request latency, status, and
// in-flight count.
func Instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method, path, and status.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2, 2.5, 5, 7.5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight",
		Help:      "Current number of inbound in-flight HTTP requests.",
	})
	reg.MustRegister(requests, inflight)

	normalized := map[string]string{}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path, ok := normalized[r.Pattern]
		if !ok {
			path = normalizePattern(r.Pattern)
			normalized[r.Pattern] = path
		}
		if path == "" {
			return
		}

		requests.WithLabelValues(r.Method, path, fmt.Sprint(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// CoordinatorMetrics instruments the search coordinator: searches started,
// completed (by outcome), and per-system/protocol counters.
type CoordinatorMetrics struct {
	searches  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	systems   *prometheus.CounterVec
}

// NewCoordinatorMetrics registers and returns the coordinator's metrics.
func NewCoordinatorMetrics(reg *prometheus.Registry) *CoordinatorMetrics {
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "searches_total",
			Help:      "Completed searches by outcome (from_cache, partial, complete).",
		},
		[]string{"outcome"},
	)
	durations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	systems := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "system_outcomes_total",
			Help:      "Per-system, per-protocol task outcomes.",
		},
		[]string{"system_id", "protocol", "outcome"},
	)
	if reg != nil {
		reg.MustRegister(searches, durations, systems)
	}
	return &CoordinatorMetrics{searches: searches, durations: durations, systems: systems}
}

// SearchCompleted records a completed search's outcome and duration.
func (m *CoordinatorMetrics) SearchCompleted(outcome string, elapsed time.Duration) {
	m.searches.WithLabelValues(outcome).Inc()
	m.durations.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// SystemOutcome records one per-system task outcome
// (success/timeout/connection/auth/rate_limit/parse/unknown/circuit_open).
func (m *CoordinatorMetrics) SystemOutcome(systemID, protocol, outcome string) {
	m.systems.WithLabelValues(systemID, protocol, outcome).Inc()
}

// CacheMetrics tracks hit/miss totals for the search-result cache.
type CacheMetrics struct {
	totals *prometheus.CounterVec
}

// NewCacheMetrics registers and returns the cache's metrics.
func NewCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "total",
			Help:      "Totals for the search-result cache.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &CacheMetrics{totals: totals}
}

// HitInc records a cache hit.
func (c *CacheMetrics) HitInc() { c.totals.WithLabelValues("hits").Inc() }

// MissInc records a cache miss.
func (c *CacheMetrics) MissInc() { c.totals.WithLabelValues("misses").Inc() }

// BreakerMetrics tracks circuit-breaker state transitions.
type BreakerMetrics struct {
	transitions *prometheus.CounterVec
}

// NewBreakerMetrics registers and returns the breaker's metrics.
func NewBreakerMetrics(reg *prometheus.Registry) *BreakerMetrics {
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions by system and target state.",
		},
		[]string{"system_id", "state"},
	)
	if reg != nil {
		reg.MustRegister(transitions)
	}
	return &BreakerMetrics{transitions: transitions}
}

// Transition records a breaker moving to state for systemID.
func (b *BreakerMetrics) Transition(systemID, state string) {
	b.transitions.WithLabelValues(systemID, state).Inc()
}
