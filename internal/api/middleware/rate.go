package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// RateLimit creates a rate limiting middleware shared by every caller.
// The control API only listens on loopback, so per-address buckets would
// all collapse into one anyway.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)

	return func(c *gin.Context) {
		r := limiter.Reserve()
		if !r.OK() {
			abortLimited(c, 1)
			return
		}
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			abortLimited(c, int(math.Ceil(delay.Seconds())))
			return
		}
		c.Next()
	}
}

func abortLimited(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error":   "rate limit exceeded",
	})
}
