// Package backoff centralizes retry delay calculation so the client and any
// custom retry policies share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before retry attempt n. Attempts are 1-based:
// Delay(1) is the pause taken before the second try.
type Strategy interface {
	Delay(attempt int, factor, max time.Duration, jitter float64) time.Duration
}

// Exponential doubles the delay each attempt: factor * 2^(n-1), capped at
// max, with optional uniform jitter added on top. With jitter 0 the delays
// are exact and non-decreasing.
type Exponential struct{}

// Delay implements Strategy.
func (Exponential) Delay(attempt int, factor, max time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shifting past 62 bits overflows time.Duration.
	if attempt > 31 {
		attempt = 31
	}

	delay := factor * time.Duration(1<<uint(attempt-1))
	if delay < 0 || (max > 0 && delay > max) {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if max > 0 && delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitter implements AWS-style decorrelated jitter: a random delay
// between the base and min(cap, base * 3^n). It trades exact delay values for
// smoother tail latencies under herd retry.
type DecorrelatedJitter struct{}

// Delay implements Strategy.
func (DecorrelatedJitter) Delay(attempt int, factor, max time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		return factor
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(factor)
	upper := base * pow(3.0, attempt)

	maxFloat := float64(max)
	if max > 0 && (upper > maxFloat || upper < 0) {
		upper = maxFloat
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || (max > 0 && delay > max) {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
