package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/contextkeys"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(config *RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := NewRateLimiter(config)
	limiter.now = clock.Now
	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter, clock := newTestLimiter(config)

	key := "ip:192.0.2.1"

	// Should allow initial requests up to limit + burst
	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if limiter.Allow(key) {
			allowedCount++
		}
	}

	expected := config.RequestsPerWindow + config.BurstSize
	if allowedCount != expected {
		t.Errorf("Allowed %d requests, want %d", allowedCount, expected)
	}

	clock.Advance(time.Second)
	if !limiter.Allow(key) {
		t.Error("Should allow request after refill")
	}
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	})

	initial := limiter.Remaining("k")
	if initial != 12 {
		t.Errorf("Initial remaining = %d, want 12", initial)
	}

	limiter.Allow("k")
	if remaining := limiter.Remaining("k"); remaining != initial-1 {
		t.Errorf("After using 1 token, remaining = %d, want %d", remaining, initial-1)
	}
}

func TestRateLimiter_TokenCap(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Second,
		BurstSize:         1,
	})

	limiter.Allow("k")
	clock.Advance(time.Hour)
	limiter.Allow("k")

	if remaining := limiter.Remaining("k"); remaining != 5 {
		t.Errorf("remaining = %d, want capacity minus one (5)", remaining)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    100 * time.Millisecond,
		BurstSize:         2,
	})

	limiter.Allow("a")
	limiter.Allow("b")
	clock.Advance(time.Second)
	limiter.Allow("b")

	limiter.Cleanup()

	limiter.mu.Lock()
	_, hasA := limiter.buckets["a"]
	_, hasB := limiter.buckets["b"]
	limiter.mu.Unlock()

	if hasA {
		t.Error("idle bucket should have been removed")
	}
	if !hasB {
		t.Error("active bucket should be kept")
	}
}

func TestRateLimiter_StartCleanup_StopsWithContext(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(ctx)
	limiter.Allow("a")
	cancel()
}

func TestNewRateLimiter_NilConfig(t *testing.T) {
	limiter := NewRateLimiter(nil)
	if limiter.config.RequestsPerWindow != DefaultLoginRateLimitConfig().RequestsPerWindow {
		t.Errorf("nil config should use the login defaults, got %+v", limiter.config)
	}
}

func TestLoginThrottle_Handler(t *testing.T) {
	throttle := NewLoginThrottle(&RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, false)

	handler := throttle.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(remote string, session bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
		req.RemoteAddr = remote
		if session {
			req = req.WithContext(contextkeys.WithSession(req.Context(), &auth.Session{Username: "alice"}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := request("192.0.2.1:1", false); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}

	rec := request("192.0.2.1:2", false)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	if rec := request("192.0.2.2:1", false); rec.Code != http.StatusOK {
		t.Errorf("other addresses are independent, got %d", rec.Code)
	}
	if rec := request("192.0.2.1:3", true); rec.Code != http.StatusOK {
		t.Errorf("session holders are not throttled, got %d", rec.Code)
	}
}
