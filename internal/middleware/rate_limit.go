package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond events per key with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Cleanup drops keys idle for longer than idle and returns how many went.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every idle interval until ctx ends.
func (rl *RateLimiter) StartCleanup(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(idle)
			}
		}
	}()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RateLimit rejects requests over the limiter's budget with 429. Requests
// are keyed by user when authenticated, by client IP otherwise.
func RateLimit(rl *RateLimiter, message string) gin.HandlerFunc {
	limit := strconv.FormatFloat(float64(rl.limit), 'f', -1, 64)
	return func(c *gin.Context) {
		key := getClientKey(c)

		if !rl.Allow(key) {
			logger.LogSecurityEvent("rate_limit_exceeded", UserID(c), c.ClientIP(), map[string]interface{}{
				"path":   c.FullPath(),
				"method": c.Request.Method,
			})
			c.Header("X-RateLimit-Limit", limit)
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			utils.ErrorResponse(c, http.StatusTooManyRequests, message)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Next()
	}
}

// getClientKey prefers the user id, then the first forwarded address.
func getClientKey(c *gin.Context) string {
	if userID := UserID(c); userID != "" {
		return "user:" + userID
	}

	ip := c.ClientIP()
	if forwardedFor := c.GetHeader("X-Forwarded-For"); forwardedFor != "" {
		ip = strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	} else if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		ip = realIP
	}
	return "ip:" + ip
}
