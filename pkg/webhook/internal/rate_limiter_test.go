package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Errorf("request over the limit should be denied")
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.allow("1.2.3.4") {
		t.Fatalf("first ip should be allowed")
	}
	if !rl.allow("5.6.7.8") {
		t.Errorf("second ip must have its own bucket")
	}
	if rl.allow("1.2.3.4") {
		t.Errorf("first ip is over its limit")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.allow("1.2.3.4") {
		t.Fatalf("first request should be allowed")
	}
	if rl.allow("1.2.3.4") {
		t.Fatalf("second request should be denied")
	}

	time.Sleep(20 * time.Millisecond)

	if !rl.allow("1.2.3.4") {
		t.Errorf("request after window expiry should be allowed")
	}
}

func TestRateLimiter_CleanupReapsExpired(t *testing.T) {
	rl := NewRateLimiter(10, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		rl.allow(fmt.Sprintf("10.0.0.%d", i))
	}
	time.Sleep(10 * time.Millisecond)
	rl.Cleanup()

	rl.mu.Lock()
	remaining := len(rl.buckets)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected all buckets reaped, %d remain", remaining)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
}

func TestReadBodyStrict(t *testing.T) {
	t.Run("reads body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("payload"))
		body, err := ReadBodyStrict(httptest.NewRecorder(), req, 64)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("got %q", body)
		}
	})

	t.Run("empty body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		if _, err := ReadBodyStrict(httptest.NewRecorder(), req, 64); err == nil {
			t.Errorf("expected error for empty body")
		}
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 100)))
		_, err := ReadBodyStrict(httptest.NewRecorder(), req, 64)
		if err == nil || !strings.Contains(err.Error(), "payload too large") {
			t.Errorf("expected payload too large error, got %v", err)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if got := GetClientIP(req); got != "1.2.3.4:5678" {
		t.Errorf("remote addr fallback: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "9.8.7.6, 1.2.3.4")
	if got := GetClientIP(req); got != "9.8.7.6" {
		t.Errorf("forwarded-for first hop: got %q", got)
	}
}
