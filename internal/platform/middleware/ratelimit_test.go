package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func rateLimited(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	e := echo.New()
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := h(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	e := echo.New()
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := h(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	e := echo.New()
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 1})

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("user_id", "patient-a")
	if err := h(c); err != nil {
		t.Fatalf("first client: %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("user_id", "patient-b")
	if err := h(c); err != nil {
		t.Fatalf("second client should have its own bucket: %v", err)
	}
}
