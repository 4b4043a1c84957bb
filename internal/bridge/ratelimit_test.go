package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiter_Allow(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            rate.Limit(10), // 10 per second
		Burst:           2,
		CleanupInterval: time.Hour, // won't trigger during test
		MaxAge:          time.Hour,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	// First two requests should be allowed (burst = 2).
	if !rl.Allow("device-1") {
		t.Error("expected first request to be allowed")
	}
	if !rl.Allow("device-1") {
		t.Error("expected second request to be allowed (within burst)")
	}

	// Third request immediately should be rejected (burst exhausted).
	if rl.Allow("device-1") {
		t.Error("expected third immediate request to be rejected")
	}
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            rate.Limit(10),
		Burst:           1,
		CleanupInterval: time.Hour,
		MaxAge:          time.Hour,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	// Each device has its own limiter — both first requests should pass.
	if !rl.Allow("device-a") {
		t.Error("expected device-a first request allowed")
	}
	if !rl.Allow("device-b") {
		t.Error("expected device-b first request allowed")
	}

	// Second requests should be rejected for both (burst=1).
	if rl.Allow("device-a") {
		t.Error("expected device-a second request rejected")
	}
	if rl.Allow("device-b") {
		t.Error("expected device-b second request rejected")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            rate.Limit(10),
		Burst:           1,
		CleanupInterval: time.Hour,
		MaxAge:          time.Hour,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First request for a device passes.
	req := httptest.NewRequest(http.MethodPost, "/v1/push", nil)
	req.Header.Set("X-Device-ID", "device-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Immediate second request for the same device is limited.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	// Request without device header falls back to the remote address.
	req = httptest.NewRequest(http.MethodPost, "/v1/push", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for IP-keyed request, got %d", w.Code)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.Rate != rate.Limit(2) {
		t.Errorf("expected rate 2, got %v", cfg.Rate)
	}
	if cfg.Burst != 10 {
		t.Errorf("expected burst 10, got %d", cfg.Burst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("expected cleanup interval 5m, got %v", cfg.CleanupInterval)
	}
	if cfg.MaxAge != 10*time.Minute {
		t.Errorf("expected max age 10m, got %v", cfg.MaxAge)
	}
}
