package transporthttp

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request id for log correlation, honoring one the
// client already sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// BodyLimit limits request bodies to maxBytes.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequireJSON ensures Content-Type is application/json for POST endpoints.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.GetHeader("Content-Type")
		if c.Request.Method == http.MethodPost && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeProblem(c, http.StatusUnsupportedMediaType, "unsupported media type", "expected application/json", nil)
			return
		}
		c.Next()
	}
}

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth
// is bypassed. Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) gin.HandlerFunc {
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if _, ok := allowed[key]; !ok {
			writeProblem(c, http.StatusUnauthorized, "unauthorized", "invalid or missing API key", nil)
			return
		}
		c.Next()
	}
}

// Simple global token bucket for the metrics endpoint.
type rateState struct {
	mu             sync.Mutex
	tokens         float64
	lastRefillNano int64
}

func RateLimitPerMinute(limitPerMin int, clock func() time.Time) gin.HandlerFunc {
	if limitPerMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	state := &rateState{tokens: float64(limitPerMin), lastRefillNano: clock().UnixNano()}
	capacity := float64(limitPerMin)
	refillPerSec := float64(limitPerMin) / 60.0

	return func(c *gin.Context) {
		now := clock()

		state.mu.Lock()
		elapsed := float64(now.UnixNano()-state.lastRefillNano) / 1e9
		state.lastRefillNano = now.UnixNano()

		state.tokens += elapsed * refillPerSec
		if state.tokens > capacity {
			state.tokens = capacity
		}
		if state.tokens < 1.0 {
			state.mu.Unlock()
			c.Header("Retry-After", "3")
			writeProblem(c, http.StatusTooManyRequests, "rate limit exceeded", "try again later", nil)
			return
		}
		state.tokens -= 1.0
		state.mu.Unlock()

		c.Next()
	}
}
