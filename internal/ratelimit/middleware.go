package ratelimit

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware rejects clients over their limit with 429. Clients are keyed by IP and route.
func Middleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + " " + c.FullPath()
		if rl.Allow(key) {
			c.Next()
			return
		}

		wait := rl.RetryAfter(key)
		log.Printf("[RateLimit] Rejected %s (retry in %s)", key, wait)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Too many requests. Please try again later.",
		})
	}
}
