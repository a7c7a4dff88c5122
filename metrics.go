package connman

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// every resilience layer. All record methods are nil-receiver safe so callers
// never guard metric calls.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	poolInUse *prometheus.GaugeVec

	batchesTotal       *prometheus.CounterVec
	batchRequestsTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for tests or multi-tenant registries.
func NewMetricsCollectorWithRegistry(registerer prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "connman_requests_total",
				Help: "Total number of HTTP requests dispatched",
			},
			[]string{"method", "status_code", "destination"},
		),
		requestDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connman_request_duration_seconds",
				Help:    "Duration of dispatched HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "destination"},
		),
		requestsInFlight: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connman_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "destination"},
		),
		retriesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "connman_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "destination", "attempt"},
		),
		circuitBreakerState: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connman_circuit_breaker_state",
				Help: "Current circuit breaker state per destination (0=closed, 1=open, 2=half-open)",
			},
			[]string{"destination"},
		),
		rateLimiterTokens: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connman_rate_limiter_tokens",
				Help: "Currently accumulated rate limiter tokens per destination",
			},
			[]string{"destination"},
		),
		poolInUse: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connman_pool_connections_in_use",
				Help: "Connection slots currently lent out per destination",
			},
			[]string{"destination"},
		),
		batchesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "connman_batches_total",
				Help: "Total number of batch dispatches",
			},
			[]string{"mode"},
		),
		batchRequestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "connman_batch_requests_total",
				Help: "Total number of requests dispatched through batches",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "connman_errors_total",
				Help: "Total number of errors by taxonomy kind",
			},
			[]string{"type", "method", "destination"},
		),
		registerer: registerer,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, destination string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, status, destination).Inc()
	mc.requestDuration.WithLabelValues(method, status, destination).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, destination string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, destination).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, destination string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, destination).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, destination string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, destination, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets the state gauge for a destination.
func (mc *MetricsCollector) RecordCircuitBreakerState(destination string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(destination).Set(float64(state))
}

// RecordRateLimiterTokens sets the available token gauge for a destination.
func (mc *MetricsCollector) RecordRateLimiterTokens(destination string, tokens float64) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(destination).Set(tokens)
}

// RecordPoolInUse sets the lent-out connection gauge for a destination.
func (mc *MetricsCollector) RecordPoolInUse(destination string, inUse int) {
	if mc == nil {
		return
	}
	mc.poolInUse.WithLabelValues(destination).Set(float64(inUse))
}

// RecordBatch records one batch dispatch and its per-item outcomes.
func (mc *MetricsCollector) RecordBatch(mode string, succeeded, failed int) {
	if mc == nil {
		return
	}
	mc.batchesTotal.WithLabelValues(mode).Inc()
	mc.batchRequestsTotal.WithLabelValues("success").Add(float64(succeeded))
	mc.batchRequestsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordError increments the error counter by taxonomy kind.
func (mc *MetricsCollector) RecordError(errorType, method, destination string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, destination).Inc()
}
