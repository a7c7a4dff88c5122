package connman

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "api.example.com", 200, 25*time.Millisecond)
	mc.RecordRequest("GET", "api.example.com", 200, 30*time.Millisecond)
	mc.RecordRequest("POST", "api.example.com", 500, 10*time.Millisecond)

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "api.example.com")); got != 2 {
		t.Errorf("requests_total{GET,200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("POST", "500", "api.example.com")); got != 1 {
		t.Errorf("requests_total{POST,500} = %v, want 1", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart("GET", "api.example.com")
	mc.RecordRequestStart("GET", "api.example.com")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "api.example.com")); got != 2 {
		t.Errorf("in_flight = %v, want 2", got)
	}

	mc.RecordRequestEnd("GET", "api.example.com")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "api.example.com")); got != 1 {
		t.Errorf("in_flight after end = %v, want 1", got)
	}
}

func TestMetricsCollectorResilienceGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCircuitBreakerState("api.example.com", StateOpen)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("api.example.com")); got != float64(StateOpen) {
		t.Errorf("circuit_breaker_state = %v, want %v", got, float64(StateOpen))
	}

	mc.RecordRateLimiterTokens("api.example.com", 42.5)
	if got := testutil.ToFloat64(mc.rateLimiterTokens.WithLabelValues("api.example.com")); got != 42.5 {
		t.Errorf("rate_limiter_tokens = %v, want 42.5", got)
	}

	mc.RecordPoolInUse("api.example.com", 3)
	if got := testutil.ToFloat64(mc.poolInUse.WithLabelValues("api.example.com")); got != 3 {
		t.Errorf("pool_connections_in_use = %v, want 3", got)
	}

	mc.RecordRetry("GET", "api.example.com", 1)
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "api.example.com", "1")); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}

	mc.RecordError(ErrorTypeRateLimit, "GET", "api.example.com")
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(ErrorTypeRateLimit, "GET", "api.example.com")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestMetricsCollectorBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordBatch("collect", 3, 1)
	if got := testutil.ToFloat64(mc.batchesTotal.WithLabelValues("collect")); got != 1 {
		t.Errorf("batches_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.batchRequestsTotal.WithLabelValues("success")); got != 3 {
		t.Errorf("batch_requests_total{success} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mc.batchRequestsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("batch_requests_total{error} = %v, want 1", got)
	}
}

func TestMetricsCollectorNilReceiver(t *testing.T) {
	var mc *MetricsCollector

	mc.RecordRequest("GET", "x", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "x")
	mc.RecordRequestEnd("GET", "x")
	mc.RecordRetry("GET", "x", 1)
	mc.RecordCircuitBreakerState("x", StateClosed)
	mc.RecordRateLimiterTokens("x", 1)
	mc.RecordPoolInUse("x", 1)
	mc.RecordBatch("collect", 1, 0)
	mc.RecordError(ErrorTypeTransport, "GET", "x")
}
