package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/io-m1/ceti/internal/ratelimit"
)

func TestMemoryRateLimitMiddleware(t *testing.T) {
	// MemoryLimiter with rate=1 token/sec and burst=2 allows the first 2 rapid
	// requests (initial burst capacity) then rejects until tokens refill.
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := memoryRateLimitMiddleware(limiter, inner)

	for i := range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/verify", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		handler.ServeHTTP(rec, req)

		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Errorf("request %d: got status %d, want %d (within burst)", i+1, rec.Code, http.StatusOK)
			}
		} else {
			if rec.Code != http.StatusTooManyRequests {
				t.Errorf("request %d: got status %d, want %d (burst exhausted)", i+1, rec.Code, http.StatusTooManyRequests)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("rate-limited response should include Retry-After header")
			}
		}
	}
}

func TestMemoryRateLimitMiddleware_DifferentIPsGetIndependentBuckets(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer func() { _ = limiter.Close() }()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := memoryRateLimitMiddleware(limiter, inner)

	rec1 := httptest.NewRecorder()
	req1 := httptest.NewRequest("POST", "/verify", nil)
	req1.RemoteAddr = "10.0.0.1:1000"
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Errorf("IP A first request: got %d, want %d", rec1.Code, http.StatusOK)
	}

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("POST", "/verify", nil)
	req2.RemoteAddr = "10.0.0.1:1000"
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("IP A second request: got %d, want %d", rec2.Code, http.StatusTooManyRequests)
	}

	rec3 := httptest.NewRecorder()
	req3 := httptest.NewRequest("POST", "/verify", nil)
	req3.RemoteAddr = "10.0.0.2:1000"
	handler.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Errorf("IP B first request: got %d, want %d", rec3.Code, http.StatusOK)
	}
}
