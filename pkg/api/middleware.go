package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ingestLimiter is a per-client-IP token bucket guarding the ingestion
// routes (spec §5: "an ingestion pool ... bounded to the server's
// connection limit"). Limiters are created lazily and never evicted —
// bounded in practice by the number of distinct client IPs, acceptable for
// a single shared-service-key deployment.
type ingestLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newIngestLimiter(ratePerSecond float64, burst int) *ingestLimiter {
	return &ingestLimiter{rps: rate.Limit(ratePerSecond), burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *ingestLimiter) forKey(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// middleware rejects requests once the caller's bucket is exhausted with a
// 429, distinct from the 422/500 taxonomy in §7 since it is a transport-
// level throttle, not a business error.
func (l *ingestLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.forKey(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, fail("RATE_LIMITED", "too many requests"))
			return
		}
		c.Next()
	}
}

// securityHeaders sets standard response headers on every request.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// serviceAuth rejects requests to the WebSocket upgrade path unless the
// caller presents the configured service key, either as a bearer token
// or as a query parameter (browsers cannot set headers on a WS handshake).
func serviceAuth(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceKey == "" {
			c.Next()
			return
		}
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("Authorization")
			const prefix = "Bearer "
			if len(token) > len(prefix) && token[:len(prefix)] == prefix {
				token = token[len(prefix):]
			}
		}
		if token != serviceKey {
			c.AbortWithStatusJSON(401, fail("UNAUTHORIZED", "invalid or missing service key"))
			return
		}
		c.Next()
	}
}
