package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterStaleThreshold  = 10 * time.Minute
)

// rateLimiter implements per-caller rate limiting using golang.org/x/time/rate.
// Cleanup of stale entries happens inline during allow() calls.
type rateLimiter struct {
	mu          sync.Mutex
	callers     map[string]*caller
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// caller holds a token bucket and last-seen time for one caller key.
type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		callers:     make(map[string]*caller),
		limit:       rate.Limit(rps),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

// allow checks if a request from the given caller key is allowed.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Periodic cleanup of stale entries
	if now.Sub(rl.lastCleanup) > rateLimiterCleanupInterval {
		for k, v := range rl.callers {
			if now.Sub(v.lastSeen) > rateLimiterStaleThreshold {
				delete(rl.callers, k)
			}
		}
		rl.lastCleanup = now
	}

	v, exists := rl.callers[key]
	if !exists {
		limiter := rate.NewLimiter(rl.limit, rl.burst)
		rl.callers[key] = &caller{limiter: limiter, lastSeen: now}
		limiter.Allow()
		return true
	}

	v.lastSeen = now
	return v.limiter.Allow()
}

// RateLimit returns middleware that limits requests per principal using a
// token bucket (burst initial tokens, refilled at rps per second). Requests
// without a resolved principal are keyed by client IP.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	rl := newRateLimiter(rps, burst)
	return func(c *gin.Context) {
		key := Principal(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.allow(key) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
