package connman

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// CircuitBreaker fails fast for a single destination once consecutive
// failures reach the configured threshold. State transitions are serialized
// under the breaker's own mutex, so concurrent dispatches against the same
// destination observe a consistent state machine while leaving other
// destinations' breakers uncontended.
//
// Transitions:
//
//	Closed    -> Open      consecutive failures reach FailureThreshold
//	Open      -> HalfOpen  RecoveryTimeout elapsed since opening
//	HalfOpen  -> Closed    the single trial call succeeds
//	HalfOpen  -> Open      the single trial call fails
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. While open it rejects until the
// recovery timeout elapses, then admits exactly one half-open trial; further
// calls are rejected until that trial's outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	default:
		return false
	}
}

// Record reports the outcome of a call previously admitted by Allow. A
// success while closed resets the failure counter; a half-open trial success
// closes the circuit, a trial failure reopens it and restarts the recovery
// window.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		cb.trialInFlight = false
		if success {
			cb.state = StateClosed
			cb.failures = 0
			return
		}
		cb.state = StateOpen
		cb.openedAt = time.Now()
	case StateOpen:
		// A call admitted before the circuit opened finished late; the
		// open-entry timestamp already reflects the newest failure.
	}
}

// Snapshot returns the current state and consecutive failure count.
func (cb *CircuitBreaker) Snapshot() (CircuitState, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures
}

// breakerRegistry tracks one CircuitBreaker per destination key. Breakers are
// created lazily with the destination's effective thresholds and kept for the
// lifetime of the client; the registry lock guards only map access, never
// breaker state.
type breakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// breaker returns the breaker for destination, creating it with config on
// first use. Thresholds are fixed at first use per destination; later
// override changes apply to destinations not yet seen.
func (r *breakerRegistry) breaker(destination string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[destination]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[destination]; ok {
		return cb
	}
	cb = NewCircuitBreaker(config)
	r.breakers[destination] = cb
	return cb
}

// snapshot returns state and failure count for every destination seen so far.
func (r *breakerRegistry) snapshot() map[string]DestinationStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]DestinationStats, len(r.breakers))
	for destination, cb := range r.breakers {
		state, failures := cb.Snapshot()
		out[destination] = DestinationStats{
			CircuitState:    state,
			CircuitFailures: failures,
		}
	}
	return out
}
