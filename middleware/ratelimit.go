package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/LovationAdmin/advisor-api/services"

	"github.com/gin-gonic/gin"
)

// RateLimiter caps requests per client IP across the whole API. Counter
// errors let the request through; a broken limiter must not take the API down.
func RateLimiter(store services.CounterStore, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, resetAt, err := store.Hit(c.Request.Context(), "global:"+c.ClientIP(), limit, window)
		if err != nil {
			log.Printf("[RateLimit] ⚠️  %v", err)
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": time.Until(resetAt).Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// StartCounterCleanup drops finished windows every minute until stop closes.
func StartCounterCleanup(store services.CounterStore, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := store.Cleanup(ctx); err != nil {
					log.Printf("[RateLimit] ⚠️  Cleanup failed: %v", err)
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
}
