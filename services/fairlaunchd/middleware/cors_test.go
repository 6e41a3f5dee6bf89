package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/sales/LAUNCH/bids", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("origin header %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/sales/LAUNCH", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected origin header %q", got)
	}
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass through, got %d", res.Code)
	}
}

func TestCORSWildcard(t *testing.T) {
	handler := CORS(CORSConfig{})(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("origin header %q", got)
	}
}
