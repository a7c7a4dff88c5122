package connman

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config holds the global defaults applied to every dispatch. Per-endpoint
// overrides (EndpointConfig) and per-call overrides are merged over these
// field by field.
type Config struct {
	PoolConnections    int
	PoolMaxSize        int
	PoolAcquireTimeout time.Duration
	MaxRetries         int
	BackoffFactor      time.Duration
	MaxBackoff         time.Duration
	BackoffJitter      float64
	RetryStatuses      []int
	RateLimitRequests  int
	RateLimitPeriod    time.Duration
	FailureThreshold   int
	RecoveryTimeout    time.Duration
	Timeout            time.Duration
	ConnectTimeout     time.Duration
}

// DefaultConfig returns the built-in global defaults.
func DefaultConfig() Config {
	return Config{
		PoolConnections:    10,
		PoolMaxSize:        10,
		PoolAcquireTimeout: 30 * time.Second,
		MaxRetries:         3,
		BackoffFactor:      300 * time.Millisecond,
		MaxBackoff:         10 * time.Second,
		BackoffJitter:      0,
		RetryStatuses:      []int{429, 500, 502, 503, 504},
		RateLimitRequests:  100,
		RateLimitPeriod:    60 * time.Second,
		FailureThreshold:   5,
		RecoveryTimeout:    60 * time.Second,
		Timeout:            30 * time.Second,
		ConnectTimeout:     10 * time.Second,
	}
}

// EndpointConfig is a partial override keyed by a host or URL pattern. Nil
// fields inherit the global default. RetryStatuses inherits when nil and
// replaces the whole set when non-nil.
type EndpointConfig struct {
	PoolMaxSize       *int
	MaxRetries        *int
	BackoffFactor     *time.Duration
	MaxBackoff        *time.Duration
	BackoffJitter     *float64
	RetryStatuses     []int
	RateLimitRequests *int
	RateLimitPeriod   *time.Duration
	FailureThreshold  *int
	RecoveryTimeout   *time.Duration
	Timeout           *time.Duration
}

// Int returns a pointer to v, for building EndpointConfig literals.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for building EndpointConfig literals.
func Duration(d time.Duration) *time.Duration { return &d }

// Float returns a pointer to f, for building EndpointConfig literals.
func Float(f float64) *float64 { return &f }

// EffectiveConfig is the fully merged set of tunables applied to one dispatch.
// It is immutable once computed and recomputed on every call, so override
// changes between calls always take effect.
type EffectiveConfig struct {
	PoolMaxSize       int
	MaxRetries        int
	BackoffFactor     time.Duration
	MaxBackoff        time.Duration
	BackoffJitter     float64
	RetryStatuses     []int
	RateLimitRequests int
	RateLimitPeriod   time.Duration
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	Timeout           time.Duration
}

// endpointResolver maps a request URL to the effective configuration and the
// destination key under which limiter and breaker state is tracked. Overrides
// are mutable at runtime; reads take the shared lock only long enough to copy
// the candidate set.
type endpointResolver struct {
	mu        sync.RWMutex
	global    Config
	overrides map[string]EndpointConfig
}

func newEndpointResolver(global Config, overrides map[string]EndpointConfig) *endpointResolver {
	r := &endpointResolver{
		global:    global,
		overrides: make(map[string]EndpointConfig, len(overrides)),
	}
	for pattern, cfg := range overrides {
		r.overrides[pattern] = cfg
	}
	return r
}

// Add registers or replaces the override for pattern.
func (r *endpointResolver) Add(pattern string, cfg EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[pattern] = cfg
}

// Remove drops the override for pattern, if present.
func (r *endpointResolver) Remove(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, pattern)
}

// Patterns returns the registered override patterns.
func (r *endpointResolver) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	patterns := make([]string, 0, len(r.overrides))
	for pattern := range r.overrides {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

func (r *endpointResolver) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.overrides)
}

// match returns the authoritative pattern for u. A pattern matches when it is
// a substring of the URL's host or of host+path. When several patterns match,
// the longest pattern wins; equal lengths are broken lexicographically so the
// result never depends on registration order.
func (r *endpointResolver) match(u *url.URL) (string, bool) {
	host := u.Host
	hostPath := u.Host + u.Path

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	found := false
	for pattern := range r.overrides {
		if !strings.Contains(host, pattern) && !strings.Contains(hostPath, pattern) {
			continue
		}
		if !found || len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
			best = pattern
			found = true
		}
	}
	return best, found
}

// Resolve merges the global defaults with the matching override (if any) and
// returns the effective configuration plus the destination key. The key is
// the matched pattern when an override applies, otherwise the URL host, so
// unrelated destinations keep independent limiter and breaker state.
func (r *endpointResolver) Resolve(u *url.URL) (EffectiveConfig, string) {
	pattern, matched := r.match(u)

	r.mu.RLock()
	eff := effectiveFromGlobal(r.global)
	if matched {
		applyOverride(&eff, r.overrides[pattern])
	}
	r.mu.RUnlock()

	destination := u.Host
	if matched {
		destination = pattern
	}
	return eff, destination
}

func effectiveFromGlobal(g Config) EffectiveConfig {
	return EffectiveConfig{
		PoolMaxSize:       g.PoolMaxSize,
		MaxRetries:        g.MaxRetries,
		BackoffFactor:     g.BackoffFactor,
		MaxBackoff:        g.MaxBackoff,
		BackoffJitter:     g.BackoffJitter,
		RetryStatuses:     g.RetryStatuses,
		RateLimitRequests: g.RateLimitRequests,
		RateLimitPeriod:   g.RateLimitPeriod,
		FailureThreshold:  g.FailureThreshold,
		RecoveryTimeout:   g.RecoveryTimeout,
		Timeout:           g.Timeout,
	}
}

func applyOverride(eff *EffectiveConfig, o EndpointConfig) {
	if o.PoolMaxSize != nil {
		eff.PoolMaxSize = *o.PoolMaxSize
	}
	if o.MaxRetries != nil {
		eff.MaxRetries = *o.MaxRetries
	}
	if o.BackoffFactor != nil {
		eff.BackoffFactor = *o.BackoffFactor
	}
	if o.MaxBackoff != nil {
		eff.MaxBackoff = *o.MaxBackoff
	}
	if o.BackoffJitter != nil {
		eff.BackoffJitter = *o.BackoffJitter
	}
	if o.RetryStatuses != nil {
		eff.RetryStatuses = o.RetryStatuses
	}
	if o.RateLimitRequests != nil {
		eff.RateLimitRequests = *o.RateLimitRequests
	}
	if o.RateLimitPeriod != nil {
		eff.RateLimitPeriod = *o.RateLimitPeriod
	}
	if o.FailureThreshold != nil {
		eff.FailureThreshold = *o.FailureThreshold
	}
	if o.RecoveryTimeout != nil {
		eff.RecoveryTimeout = *o.RecoveryTimeout
	}
	if o.Timeout != nil {
		eff.Timeout = *o.Timeout
	}
}

// parseRequestURL validates that rawURL is a well-formed absolute HTTP(S) URL.
func parseRequestURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("malformed url %q", rawURL),
			Cause:   err,
			URL:     rawURL,
		}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("url %q must be absolute with a host", rawURL),
			URL:     rawURL,
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			URL:     rawURL,
		}
	}
	return u, nil
}
