package connman

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("call %d rejected while closed", i)
		}
		cb.Record(false)
	}
	if state, failures := cb.Snapshot(); state != StateClosed || failures != 2 {
		t.Fatalf("state = %v failures = %d, want closed/2", state, failures)
	}

	cb.Allow()
	cb.Record(false)
	if state, _ := cb.Snapshot(); state != StateOpen {
		t.Fatalf("state = %v, want open after threshold", state)
	}
	if cb.Allow() {
		t.Error("open breaker admitted a call")
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	cb.Record(false)
	cb.Record(false)
	cb.Record(true)
	if _, failures := cb.Snapshot(); failures != 0 {
		t.Fatalf("failures = %d after success, want 0", failures)
	}

	cb.Record(false)
	cb.Record(false)
	if state, _ := cb.Snapshot(); state != StateClosed {
		t.Errorf("state = %v, want closed (counter was reset)", state)
	}
}

func TestCircuitBreakerHalfOpenSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	cb.Record(false)
	if cb.Allow() {
		t.Fatal("breaker admitted a call while open")
	}

	time.Sleep(30 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("recovery timeout elapsed but trial rejected")
	}
	if state, _ := cb.Snapshot(); state != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", state)
	}
	if cb.Allow() {
		t.Fatal("second call admitted while trial in flight")
	}

	cb.Record(true)
	if state, failures := cb.Snapshot(); state != StateClosed || failures != 0 {
		t.Fatalf("state = %v failures = %d after trial success, want closed/0", state, failures)
	}
	if !cb.Allow() {
		t.Error("closed breaker rejected a call")
	}
}

func TestCircuitBreakerTrialFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	cb.Record(false)

	time.Sleep(30 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("trial rejected")
	}
	cb.Record(false)

	if state, _ := cb.Snapshot(); state != StateOpen {
		t.Fatalf("state = %v, want open after failed trial", state)
	}
	if cb.Allow() {
		t.Error("reopened breaker admitted a call before the recovery window")
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	for i := 0; i < 4; i++ {
		cb.Record(false)
	}
	if state, _ := cb.Snapshot(); state != StateClosed {
		t.Fatalf("state = %v after 4 failures, want closed (default threshold 5)", state)
	}
	cb.Record(false)
	if state, _ := cb.Snapshot(); state != StateOpen {
		t.Errorf("state = %v after 5 failures, want open", state)
	}
}

func TestCircuitBreakerConcurrentHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})
	cb.Record(false)
	time.Sleep(20 * time.Millisecond)

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("admitted %d concurrent half-open trials, want exactly 1", admitted)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreakerRegistry(t *testing.T) {
	r := newBreakerRegistry()
	config := CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}

	a := r.breaker("api.example.com", config)
	if b := r.breaker("api.example.com", config); b != a {
		t.Error("same destination returned a different breaker")
	}
	if c := r.breaker("other.com", config); c == a {
		t.Error("different destinations share a breaker")
	}

	a.Record(false)
	snapshot := r.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d destinations, want 2", len(snapshot))
	}
	if got := snapshot["api.example.com"]; got.CircuitState != StateClosed || got.CircuitFailures != 1 {
		t.Errorf("snapshot[api.example.com] = %+v", got)
	}
}
