package connman

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterRegistry tracks one token bucket per destination key. Buckets
// refill continuously at quota/period and admit at most quota requests in any
// rolling window; refill is computed lazily by x/time/rate on each check, so
// no background timer runs. The registry lock guards only map access.
type rateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newRateLimiterRegistry() *rateLimiterRegistry {
	return &rateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the limiter for destination, creating it on first use with
// quota requests per period and burst capacity equal to the quota. If the
// effective quota changed since creation (override added or removed), the
// limiter is retuned in place.
func (r *rateLimiterRegistry) limiter(destination string, requests int, period time.Duration) *rate.Limiter {
	limit := rate.Limit(float64(requests) / period.Seconds())

	r.mu.RLock()
	lim, ok := r.limiters[destination]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		lim, ok = r.limiters[destination]
		if !ok {
			lim = rate.NewLimiter(limit, requests)
			r.limiters[destination] = lim
		}
		r.mu.Unlock()
	}

	if lim.Limit() != limit {
		lim.SetLimit(limit)
	}
	if lim.Burst() != requests {
		lim.SetBurst(requests)
	}
	return lim
}

// Allow consumes one token for destination if available.
func (r *rateLimiterRegistry) Allow(destination string, requests int, period time.Duration) bool {
	return r.limiter(destination, requests, period).Allow()
}

// Wait blocks until a token is available for destination or ctx is done.
func (r *rateLimiterRegistry) Wait(ctx context.Context, destination string, requests int, period time.Duration) error {
	return r.limiter(destination, requests, period).Wait(ctx)
}

// Tokens reports the currently accumulated token count for destination, for
// the stats and metrics surfaces. Returns the full quota for destinations not
// yet seen.
func (r *rateLimiterRegistry) Tokens(destination string, requests int) float64 {
	r.mu.RLock()
	lim, ok := r.limiters[destination]
	r.mu.RUnlock()
	if !ok {
		return float64(requests)
	}
	return lim.Tokens()
}
