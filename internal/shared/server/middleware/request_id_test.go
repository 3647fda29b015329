package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	var seen string
	router.GET("/x", func(c *gin.Context) {
		seen = RequestIDFromContext(c)
		c.Status(http.StatusNoContent)
	})

	cases := map[string]bool{
		"":                       false,
		"abc-123_x.y:z":          true,
		"has space":              false,
		"line\nbreak":            false,
		strings.Repeat("a", 129): false,
	}
	for header, keep := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header[RequestIDHeader] = []string{header}
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		got := resp.Header().Get(RequestIDHeader)
		if got != seen {
			t.Fatalf("response header %q differs from context %q", got, seen)
		}
		if keep {
			if got != header {
				t.Fatalf("expected %q to be kept, got %q", header, got)
			}
			continue
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("expected generated uuid for %q, got %q", header, got)
		}
	}
}
