package connman

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterQuota(t *testing.T) {
	r := newRateLimiterRegistry()

	if !r.Allow("api.example.com", 2, time.Minute) {
		t.Fatal("first request rejected")
	}
	if !r.Allow("api.example.com", 2, time.Minute) {
		t.Fatal("second request rejected")
	}
	if r.Allow("api.example.com", 2, time.Minute) {
		t.Error("third request admitted past the quota")
	}
}

func TestRateLimiterPerDestinationIsolation(t *testing.T) {
	r := newRateLimiterRegistry()

	r.Allow("a.example.com", 1, time.Minute)
	if r.Allow("a.example.com", 1, time.Minute) {
		t.Fatal("quota for a.example.com not exhausted")
	}
	if !r.Allow("b.example.com", 1, time.Minute) {
		t.Error("b.example.com rejected by a.example.com's exhausted bucket")
	}
}

func TestRateLimiterRetuneOnConfigChange(t *testing.T) {
	r := newRateLimiterRegistry()

	lim := r.limiter("api.example.com", 2, time.Minute)
	retuned := r.limiter("api.example.com", 10, time.Second)
	if lim != retuned {
		t.Fatal("retune replaced the limiter instead of adjusting it")
	}
	if got := retuned.Burst(); got != 10 {
		t.Errorf("Burst = %d, want 10", got)
	}
	if got := retuned.Limit(); got != rate.Limit(10) {
		t.Errorf("Limit = %v, want 10/s", got)
	}
}

func TestRateLimiterTokensUnseenDestination(t *testing.T) {
	r := newRateLimiterRegistry()
	if got := r.Tokens("never-seen", 5); got != 5 {
		t.Errorf("Tokens = %v, want full quota 5", got)
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	r := newRateLimiterRegistry()
	if !r.Allow("api.example.com", 1, time.Minute) {
		t.Fatal("first request rejected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Wait(ctx, "api.example.com", 1, time.Minute)
	if err == nil {
		t.Fatal("Wait succeeded with an exhausted bucket and a short deadline")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait blocked %v, want prompt deadline failure", elapsed)
	}
}
