package handler_test

import (
	"net/http"
	"testing"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimiterGuardsWrites exercises the same gin-rate-limit wiring the
// server installs, with a limit small enough to trip inside one test.
func TestRateLimiterGuardsWrites(t *testing.T) {
	ts := newTestServer(t, nil)

	store := rateli.InMemoryStore(&rateli.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 2,
	})
	limiter := rateli.RateLimiter(store, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})

	router := gin.New()
	ts.api.RegisterRoutes(router, limiter)

	body := map[string]interface{}{"prompt": "Go in production", "slideCount": 2}
	for i := 1; i <= 2; i++ {
		w := performJSON(t, router, http.MethodPost, "/chat/generate", body)
		require.Equal(t, http.StatusOK, w.Code, "Request %d is within the limit", i)
	}

	w := performJSON(t, router, http.MethodPost, "/chat/generate", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "Request past the limit should be rejected")
	assert.Contains(t, w.Body.String(), "Too many requests", "Rejection body should carry a retry hint")

	t.Run("Read endpoints stay unguarded", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, "/slides/providers", nil)
		assert.Equal(t, http.StatusOK, w.Code, "GET endpoints bypass the limiter even when the key is exhausted")
	})
}
