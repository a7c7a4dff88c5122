// Package connman provides a resilient HTTP connection manager that wraps
// outbound request dispatch with composable reliability primitives:
//
//   - Connection pooling with a hard per-destination upper bound
//   - Bounded retries with exponential backoff and Retry-After awareness
//   - Token bucket rate limiting, tracked per destination
//   - Circuit breaker (closed / open / half-open) per destination
//   - Per-endpoint configuration overrides merged over global defaults
//   - Authentication header injection (API key, bearer, basic, OAuth2)
//   - Observer hooks before dispatch, after response, and on error
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Single call surface – Get/Post/etc. all funnel through Dispatch
//   - Functional options configure everything at construction
//   - Safe concurrent use of a single *Client instance
//   - Unrelated destinations never contend on shared limiter or breaker state
//
// Typical usage:
//
//	client := connman.New(
//	    connman.WithMaxRetries(3),
//	    connman.WithRateLimit(100, time.Minute),
//	    connman.WithCircuitBreaker(5, 60*time.Second),
//	    connman.WithEndpointConfig("api.example.com", connman.EndpointConfig{
//	        Timeout: connman.Duration(60 * time.Second),
//	    }),
//	)
//	defer client.Close()
//	resp, err := client.Get(ctx, "https://api.example.com/data", nil)
//
// Rate limit and circuit breaker rejections are immediate and never retried
// internally; retryable transport failures are absorbed by the retry loop and
// only surface once retries are exhausted. Each rejection kind remains
// distinguishable via errors.Is against the package sentinel errors.
package connman
