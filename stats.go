package connman

import "time"

// DestinationStats is the per-destination slice of a stats snapshot.
type DestinationStats struct {
	CircuitState    CircuitState
	CircuitFailures int
}

// Stats is a read-only snapshot of the client's resilience state and
// configuration.
type Stats struct {
	Destinations        map[string]DestinationStats
	RateLimitRequests   int
	RateLimitPeriod     time.Duration
	Timeout             time.Duration
	EndpointConfigCount int
}

// Stats returns a point-in-time snapshot: circuit state and failure count for
// every destination seen so far, the global rate limit configuration, the
// default timeout, and the number of registered endpoint overrides.
func (c *Client) Stats() Stats {
	return Stats{
		Destinations:        c.breakers.snapshot(),
		RateLimitRequests:   c.config.RateLimitRequests,
		RateLimitPeriod:     c.config.RateLimitPeriod,
		Timeout:             c.config.Timeout,
		EndpointConfigCount: c.resolver.len(),
	}
}
