package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rule RateLimitRule, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(Auth())
	r.POST("/api/v1/documents", RateLimit(rule, limiter), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	r.GET("/api/v1/documents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func post(r http.Handler, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	req.Header.Set(UserIDHeader, user)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitUploadsPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(RateLimitRule{Rate: 1, Burst: 2}, NewRateLimiter(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		if resp := post(r, "instructor-1"); resp.Code != http.StatusCreated {
			t.Fatalf("upload %d expected 201, got %d", i+1, resp.Code)
		}
	}
	if resp := post(r, "instructor-1"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("upload 3 expected 429, got %d", resp.Code)
	}
	if resp := post(r, "instructor-2"); resp.Code != http.StatusCreated {
		t.Fatalf("other user expected 201, got %d", resp.Code)
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set(UserIDHeader, "instructor-1")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("unlimited route expected 200, got %d", resp.Code)
		}
	}
}

func TestRateLimit429IncludesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(RateLimitRule{Rate: 0.5, Burst: 1}, NewRateLimiter(func() time.Time { return now }))

	if resp := post(r, "instructor-1"); resp.Code != http.StatusCreated {
		t.Fatalf("expected first request 201, got %d", resp.Code)
	}
	resp := post(r, "instructor-1")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected code rate_limited, got %q", payload.Error.Code)
	}
	if payload.Error.Details["retryAfterMs"] != float64(2000) {
		t.Fatalf("expected retryAfterMs 2000, got %v", payload.Error.Details["retryAfterMs"])
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 1, Burst: 1}

	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("expected first call allowed")
	}
	if ok, wait := limiter.Allow("k", rule); ok || wait != time.Second {
		t.Fatalf("expected denial with 1s wait, got ok=%v wait=%s", ok, wait)
	}
	now = now.Add(time.Second)
	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("expected refill after 1s")
	}
}

func TestRateLimitDisabledRule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := limitedRouter(RateLimitRule{}, nil)
	for i := 0; i < 20; i++ {
		if resp := post(r, "instructor-1"); resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 with disabled rule, got %d", resp.Code)
		}
	}
}
