package connman

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants used in ClientError.Type. Each corresponds to one of
// the sentinel errors below and stays distinguishable for programmatic
// handling; no kind is ever downgraded to a generic error.
const (
	ErrorTypeInvalidRequest = "InvalidRequest"
	ErrorTypeRateLimit      = "RateLimit"
	ErrorTypeCircuitOpen    = "CircuitOpen"
	ErrorTypeMaxRetries     = "MaxRetries"
	ErrorTypeTransport      = "Transport"
	ErrorTypeValidation     = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrInvalidRequest is returned for malformed URLs, methods or options,
	// before any limiter, breaker or pool state is touched.
	ErrInvalidRequest = errors.New("connman: invalid request")

	// ErrRateLimited is returned when a request is denied due to rate limiting.
	// No transport attempt is made.
	ErrRateLimited = errors.New("connman: rate limited")

	// ErrCircuitOpen is returned when the destination's circuit breaker is open.
	// No transport attempt is made.
	ErrCircuitOpen = errors.New("connman: circuit open")

	// ErrMaxRetriesExceeded is returned once all retry attempts are exhausted.
	// The wrapping ClientError carries the last observed outcome.
	ErrMaxRetriesExceeded = errors.New("connman: max retries exceeded")

	// ErrTransport is returned for terminal, non-retryable transport outcomes
	// such as a 4xx status outside the retryable set.
	ErrTransport = errors.New("connman: transport failure")
)

// sentinelFor maps an error type to its sentinel, for errors.Is matching.
func sentinelFor(errorType string) error {
	switch errorType {
	case ErrorTypeInvalidRequest:
		return ErrInvalidRequest
	case ErrorTypeRateLimit:
		return ErrRateLimited
	case ErrorTypeCircuitOpen:
		return ErrCircuitOpen
	case ErrorTypeMaxRetries:
		return ErrMaxRetriesExceeded
	case ErrorTypeTransport:
		return ErrTransport
	default:
		return nil
	}
}

// ClientError is the error type surfaced by Client for every failure kind.
// Type identifies the taxonomy entry; the remaining fields carry diagnostic
// context about the request that produced it.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target matches this error's kind. It matches both the
// package sentinel for the error's Type and other *ClientError values with
// the same Type, so errors.Is(err, ErrRateLimited) works for callers.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if s := sentinelFor(e.Type); s != nil && target == s {
		return true
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient determines if an error represents a transient failure that might
// succeed on retry or after backing off externally. Rate limit and circuit
// breaker rejections are transient; invalid requests and terminal 4xx
// transport outcomes are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrMaxRetriesExceeded) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeRateLimit, ErrorTypeCircuitOpen, ErrorTypeMaxRetries:
			return true
		case ErrorTypeTransport:
			// 429 responses are transient; other terminal outcomes are not.
			return clientErr.StatusCode == 429 || clientErr.StatusCode >= 500
		default:
			return false
		}
	}

	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
