package internal

import (
	"testing"
	"time"
)

// TestRateLimiterAllow tests that the token bucket refills at the configured rate.
func TestRateLimiterAllow(t *testing.T) {
	limiter := &rateLimiter{
		store: make(map[string]*rateEntry),
		rps:   1,
		burst: 1,
	}

	if !limiter.allow("client") {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.allow("client") {
		t.Fatalf("expected second request to be rate limited")
	}

	time.Sleep(1100 * time.Millisecond)

	if !limiter.allow("client") {
		t.Fatalf("expected request after refill to be allowed")
	}
}

// TestRateLimiterPrune tests that idle entries are dropped after the ttl.
func TestRateLimiterPrune(t *testing.T) {
	limiter := &rateLimiter{
		store: make(map[string]*rateEntry),
		rps:   1,
		burst: 1,
		ttl:   10 * time.Millisecond,
	}

	limiter.allow("stale")
	time.Sleep(20 * time.Millisecond)
	limiter.allow("fresh")

	limiter.mu.Lock()
	_, ok := limiter.store["stale"]
	limiter.mu.Unlock()
	if ok {
		t.Fatalf("expected stale entry to be pruned")
	}
}

// TestRateLimiterPerClient tests that clients are limited independently.
func TestRateLimiterPerClient(t *testing.T) {
	limiter := &rateLimiter{
		store: make(map[string]*rateEntry),
		rps:   1,
		burst: 1,
	}

	if !limiter.allow("a") {
		t.Fatalf("expected first client to be allowed")
	}
	if !limiter.allow("b") {
		t.Fatalf("expected second client to be allowed")
	}
}
