package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
)

// RequestIDMiddleware attaches a request id to the context and response,
// honoring one supplied by an upstream proxy.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = idgen.New()
		}
		c.Header("X-Request-Id", requestID)
		c.Request = c.Request.WithContext(
			logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// LoggingMiddleware records one structured line per request and injects
// the logger into the request context for downstream handlers.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(
			logging.WithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		logging.L(c.Request.Context()).Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// actorFromHeaders builds the caller identity from the headers the auth
// gateway injects. All three parts must be present.
func actorFromHeaders(c *gin.Context) (clans.Actor, bool) {
	actor := clans.Actor{
		PlayerID: c.GetHeader("X-Player-Id"),
		Username: c.GetHeader("X-Username"),
		ClanID:   c.GetHeader("X-Clan-Id"),
	}
	if actor.PlayerID == "" || actor.Username == "" || actor.ClanID == "" {
		return clans.Actor{}, false
	}
	return actor, true
}

// AdminAuthMiddleware gates emergency intervention endpoints behind the
// shared admin secret. With no secret configured, admin routes are closed.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Admin-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// rateLimiter is a per-client token bucket. Buckets refill at rps tokens
// per second with a burst of 2×rps, and idle buckets are evicted.
type rateLimiter struct {
	rps     float64
	burst   float64
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rps int) *rateLimiter {
	return &rateLimiter{
		rps:     float64(rps),
		burst:   float64(2 * rps),
		buckets: make(map[string]*bucket),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, last: now}
		rl.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() * rl.rps
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictIdle drops buckets untouched for the given duration. Called
// periodically so the map does not grow with one entry per client ever seen.
func (rl *rateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for key, b := range rl.buckets {
		if b.last.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware limits requests per client IP. rps <= 0 disables it.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	rl := newRateLimiter(rps)
	go func() {
		for range time.Tick(time.Minute) {
			rl.evictIdle(5 * time.Minute)
		}
	}()
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
