package connman

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PoolConnections != 10 {
		t.Errorf("PoolConnections = %d, want 10", cfg.PoolConnections)
	}
	if cfg.PoolMaxSize != 10 {
		t.Errorf("PoolMaxSize = %d, want 10", cfg.PoolMaxSize)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BackoffFactor != 300*time.Millisecond {
		t.Errorf("BackoffFactor = %v, want 300ms", cfg.BackoffFactor)
	}
	if cfg.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", cfg.MaxBackoff)
	}
	if want := []int{429, 500, 502, 503, 504}; !reflect.DeepEqual(cfg.RetryStatuses, want) {
		t.Errorf("RetryStatuses = %v, want %v", cfg.RetryStatuses, want)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitPeriod != 60*time.Second {
		t.Errorf("rate limit = %d per %v, want 100 per 60s", cfg.RateLimitRequests, cfg.RateLimitPeriod)
	}
	if cfg.FailureThreshold != 5 || cfg.RecoveryTimeout != 60*time.Second {
		t.Errorf("circuit breaker = %d/%v, want 5/60s", cfg.FailureThreshold, cfg.RecoveryTimeout)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return u
}

func TestResolverNoOverride(t *testing.T) {
	r := newEndpointResolver(DefaultConfig(), nil)

	eff, destination := r.Resolve(mustParse(t, "https://other.com/path"))
	if destination != "other.com" {
		t.Errorf("destination = %q, want URL host", destination)
	}
	if eff.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want global default 3", eff.MaxRetries)
	}
}

func TestResolverLongestPatternWins(t *testing.T) {
	r := newEndpointResolver(DefaultConfig(), map[string]EndpointConfig{
		"example.com":         {MaxRetries: Int(1)},
		"api.example.com":     {MaxRetries: Int(5)},
		"api.example.com/v1/": {MaxRetries: Int(7)},
	})

	tests := []struct {
		url             string
		wantDestination string
		wantRetries     int
	}{
		{"https://api.example.com/v1/users", "api.example.com/v1/", 7},
		{"https://api.example.com/v2/users", "api.example.com", 5},
		{"https://www.example.com/", "example.com", 1},
		{"https://unrelated.io/", "unrelated.io", 3},
	}

	for _, tt := range tests {
		eff, destination := r.Resolve(mustParse(t, tt.url))
		if destination != tt.wantDestination {
			t.Errorf("%s: destination = %q, want %q", tt.url, destination, tt.wantDestination)
		}
		if eff.MaxRetries != tt.wantRetries {
			t.Errorf("%s: MaxRetries = %d, want %d", tt.url, eff.MaxRetries, tt.wantRetries)
		}
	}
}

func TestResolverLexicographicTieBreak(t *testing.T) {
	// Two equal-length patterns both match; the lexicographically smaller one
	// wins regardless of registration order.
	r := newEndpointResolver(DefaultConfig(), map[string]EndpointConfig{
		"/bb": {MaxRetries: Int(2)},
		"/aa": {MaxRetries: Int(9)},
	})

	u := mustParse(t, "https://svc.example.com/aa/bb")
	for i := 0; i < 5; i++ {
		eff, destination := r.Resolve(u)
		if destination != "/aa" {
			t.Fatalf("destination = %q, want /aa", destination)
		}
		if eff.MaxRetries != 9 {
			t.Fatalf("MaxRetries = %d, want 9", eff.MaxRetries)
		}
	}
}

func TestResolverIdempotent(t *testing.T) {
	r := newEndpointResolver(DefaultConfig(), map[string]EndpointConfig{
		"api.example.com": {MaxRetries: Int(5), Timeout: Duration(5 * time.Second)},
	})
	u := mustParse(t, "https://api.example.com/users")

	eff1, dest1 := r.Resolve(u)
	eff2, dest2 := r.Resolve(u)
	if dest1 != dest2 {
		t.Errorf("destinations differ: %q vs %q", dest1, dest2)
	}
	if !reflect.DeepEqual(eff1, eff2) {
		t.Errorf("effective configs differ: %+v vs %+v", eff1, eff2)
	}
}

func TestResolverRuntimeMutation(t *testing.T) {
	r := newEndpointResolver(DefaultConfig(), nil)
	u := mustParse(t, "https://api.example.com/users")

	r.Add("api.example.com", EndpointConfig{MaxRetries: Int(7)})
	if eff, _ := r.Resolve(u); eff.MaxRetries != 7 {
		t.Errorf("after Add: MaxRetries = %d, want 7", eff.MaxRetries)
	}
	if got := r.Patterns(); len(got) != 1 || got[0] != "api.example.com" {
		t.Errorf("Patterns = %v", got)
	}

	r.Remove("api.example.com")
	if eff, destination := r.Resolve(u); eff.MaxRetries != 3 || destination != "api.example.com" {
		t.Errorf("after Remove: MaxRetries = %d destination = %q", eff.MaxRetries, destination)
	}
	if r.len() != 0 {
		t.Errorf("len = %d, want 0", r.len())
	}
}

func TestApplyOverride(t *testing.T) {
	eff := effectiveFromGlobal(DefaultConfig())

	applyOverride(&eff, EndpointConfig{
		MaxRetries:    Int(6),
		Timeout:       Duration(5 * time.Second),
		RetryStatuses: []int{503},
	})
	if eff.MaxRetries != 6 {
		t.Errorf("MaxRetries = %d, want 6", eff.MaxRetries)
	}
	if eff.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", eff.Timeout)
	}
	if !reflect.DeepEqual(eff.RetryStatuses, []int{503}) {
		t.Errorf("RetryStatuses = %v, want [503]", eff.RetryStatuses)
	}
	// Untouched fields keep the global defaults.
	if eff.BackoffFactor != 300*time.Millisecond {
		t.Errorf("BackoffFactor = %v, want inherited 300ms", eff.BackoffFactor)
	}
	if eff.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want inherited 100", eff.RateLimitRequests)
	}

	// Nil RetryStatuses inherits rather than clearing.
	eff2 := effectiveFromGlobal(DefaultConfig())
	applyOverride(&eff2, EndpointConfig{MaxRetries: Int(1)})
	if len(eff2.RetryStatuses) != 5 {
		t.Errorf("RetryStatuses = %v, want inherited defaults", eff2.RetryStatuses)
	}
}

func TestParseRequestURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https url", "https://api.example.com/users", false},
		{"http url", "http://api.example.com", false},
		{"relative", "/users", true},
		{"no host", "http://", true},
		{"bad scheme", "ftp://files.example.com", true},
		{"malformed", "http://bad url with spaces", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRequestURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRequestURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error does not match ErrInvalidRequest: %v", err)
			}
		})
	}
}
