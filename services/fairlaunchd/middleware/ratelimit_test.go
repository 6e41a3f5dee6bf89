package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"bids": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	now := time.Unix(1_000, 0)
	limiter.clockNow = func() time.Time { return now }

	handler := limiter.Middleware("bids")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/sales/LAUNCH/bids", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	now = now.Add(time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"bids":   {RequestsPerMinute: 60, Burst: 1},
		"cranks": {RequestsPerMinute: 60, Burst: 1},
	}, nil)

	bids := limiter.Middleware("bids")(okHandler())
	cranks := limiter.Middleware("cranks")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/sales/LAUNCH/bids", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	bids.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected bid request to succeed, got %d", res.Code)
	}

	crankReq := httptest.NewRequest(http.MethodPost, "/v1/sales/LAUNCH/restart", nil)
	crankReq.Header.Set("X-API-Key", "tenant-A")
	crankRes := httptest.NewRecorder()
	cranks.ServeHTTP(crankRes, crankReq)
	if crankRes.Code != http.StatusOK {
		t.Fatalf("expected first crank request to succeed, got %d", crankRes.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"bids": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	handler := limiter.Middleware("bids")(okHandler())

	for _, key := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/sales/LAUNCH/bids", nil)
		req.Header.Set("X-API-Key", key)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected success, got %d", key, res.Code)
		}
	}
}

func TestRateLimiterIgnoresUnconfiguredGroups(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("reads")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sales/LAUNCH", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d limited: %d", i, res.Code)
		}
	}
}

func TestClientIDPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	if got := clientID(req); got != "10.0.0.9" {
		t.Fatalf("remote addr: %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.5" {
		t.Fatalf("forwarded: %s", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("real ip: %s", got)
	}
	req.Header.Set("X-API-Key", "k")
	if got := clientID(req); got != "key:k" {
		t.Fatalf("api key: %s", got)
	}
}
