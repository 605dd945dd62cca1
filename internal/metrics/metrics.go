/**
 * @description
 * Prometheus collectors for the superapp backend: HTTP traffic by route pattern,
 * ledger postings by kind, outbox delivery outcomes and circuit breaker state.
 * The collectors are registered on their own registry so tests can build fresh
 * instances without tripping duplicate registration.
 *
 * @dependencies
 * - github.com/prometheus/client_golang: Collectors and the /metrics handler.
 * - github.com/go-chi/chi/v5: Route patterns used as the endpoint label.
 */
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	ledgerPostings  *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	outboxFailed    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
}

// New creates the collectors under namespace and registers them.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ledgerPostings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_postings_total",
				Help:      "Ledger postings by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		outboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox messages published to the broker",
			},
			[]string{"routing_key"},
		),
		outboxFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_failed_total",
				Help:      "Outbox messages that failed to publish and were rescheduled",
			},
			[]string{"routing_key"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per integration (0=closed, 1=half-open, 2=open)",
			},
			[]string{"integration"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.ledgerPostings,
		m.outboxPublished,
		m.outboxFailed,
		m.circuitState,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records the request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(srw, r)

		endpoint := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(srw.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// ObservePosting counts a ledger posting. outcome is "committed" or "rejected".
func (m *Metrics) ObservePosting(kind, outcome string) {
	if m == nil {
		return
	}
	m.ledgerPostings.WithLabelValues(kind, outcome).Inc()
}

// ObserveOutboxPublished counts a delivered outbox message.
func (m *Metrics) ObserveOutboxPublished(routingKey string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(routingKey).Inc()
}

// ObserveOutboxFailed counts a failed publish attempt.
func (m *Metrics) ObserveOutboxFailed(routingKey string) {
	if m == nil {
		return
	}
	m.outboxFailed.WithLabelValues(routingKey).Inc()
}

// SetCircuitState matches breaker.Config.OnStateChange.
func (m *Metrics) SetCircuitState(name, state string) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(name).Set(circuitStateValue(state))
}

func circuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// routePattern returns the matched chi pattern so ids do not explode label cardinality.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
