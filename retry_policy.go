package connman

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gudetimes1234/connman/internal/backoff"
)

// BackoffStrategy selects the delay algorithm used between retries.
type BackoffStrategy int

const (
	// ExponentialBackoff doubles the delay each attempt:
	// BackoffFactor * 2^(n-1), capped at MaxBackoff.
	ExponentialBackoff BackoffStrategy = iota
	// DecorrelatedJitterBackoff uses AWS-style decorrelated jitter.
	DecorrelatedJitterBackoff
)

// RetryPolicy decides whether an outcome is worth another attempt and how
// long to wait before it. Network errors and per-attempt timeouts are always
// retryable; HTTP responses are retryable only when their status is in the
// configured set. Everything else is terminal.
type RetryPolicy struct {
	maxRetries    int
	backoffFactor time.Duration
	maxBackoff    time.Duration
	jitter        float64
	retryStatuses map[int]struct{}
	strategy      backoff.Strategy
}

// newRetryPolicy builds a policy from an effective per-call configuration.
func newRetryPolicy(eff EffectiveConfig, strategy BackoffStrategy) *RetryPolicy {
	statuses := make(map[int]struct{}, len(eff.RetryStatuses))
	for _, status := range eff.RetryStatuses {
		statuses[status] = struct{}{}
	}

	var s backoff.Strategy = backoff.Exponential{}
	if strategy == DecorrelatedJitterBackoff {
		s = backoff.DecorrelatedJitter{}
	}

	return &RetryPolicy{
		maxRetries:    eff.MaxRetries,
		backoffFactor: eff.BackoffFactor,
		maxBackoff:    eff.MaxBackoff,
		jitter:        eff.BackoffJitter,
		retryStatuses: statuses,
		strategy:      s,
	}
}

// Retryable classifies an attempt outcome. err covers transport failures and
// per-attempt deadline expiry; resp covers delivered HTTP responses.
func (p *RetryPolicy) Retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	_, ok := p.retryStatuses[resp.StatusCode]
	return ok
}

// ShouldRetry reports whether retry attempt number attempt may run. Attempts
// are 1-based, so with maxRetries 3 the fourth overall try is the last.
func (p *RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt <= p.maxRetries
}

// BackoffDelay computes the wait before retry attempt n from the configured
// strategy.
func (p *RetryPolicy) BackoffDelay(attempt int) time.Duration {
	return p.strategy.Delay(attempt, p.backoffFactor, p.maxBackoff, p.jitter)
}

// RetryDelay is BackoffDelay unless the response carries a usable
// Retry-After hint, which then takes precedence.
func (p *RetryPolicy) RetryDelay(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if delay := parseRetryAfter(resp.Header.Get("Retry-After")); delay > 0 {
			return delay
		}
	}
	return p.BackoffDelay(attempt)
}

// parseRetryAfter parses the Retry-After header value. It supports both
// delay-seconds and HTTP-date formats, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
