// Package metrics holds the storefront's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by backend and order metrics.
const (
	OutcomeSuccess    = "success"
	OutcomeTransport  = "transport_error"
	OutcomeBackend    = "backend_error"
	OutcomeValidation = "validation_error"
	OutcomeRejected   = "rejected"
)

var (
	// Registry holds the storefront collectors.
	Registry = prometheus.NewRegistry()

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Catalog backend requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of catalog backend requests, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"operation"},
	)

	backendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried catalog backend attempts.",
		},
		[]string{"operation"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Order submissions by outcome.",
		},
		[]string{"outcome"},
	)

	cartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by kind.",
		},
		[]string{"kind"},
	)

	bridgeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "bridge",
			Name:      "sessions",
			Help:      "Currently connected host sessions.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		backendRequests,
		backendDuration,
		backendRetries,
		orders,
		cartMutations,
		bridgeSessions,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordBackendRequest records one logical backend call.
func RecordBackendRequest(operation, outcome string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	backendRequests.WithLabelValues(operation, outcome).Inc()
	backendDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBackendRetry counts a retried attempt.
func RecordBackendRetry(operation string) {
	backendRetries.WithLabelValues(operation).Inc()
}

// RecordOrder counts an order submission outcome.
func RecordOrder(outcome string) {
	orders.WithLabelValues(outcome).Inc()
}

// RecordCartMutation counts a cart mutation (add, update, remove, rejected).
func RecordCartMutation(kind string) {
	cartMutations.WithLabelValues(kind).Inc()
}

// SessionOpened increments the connected sessions gauge.
func SessionOpened() { bridgeSessions.Inc() }

// SessionClosed decrements the connected sessions gauge.
func SessionClosed() { bridgeSessions.Dec() }

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
