package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimit is a per-client token bucket. rps is both the refill rate
// and the burst capacity; requests over the budget get 429.
func RateLimit(rps float64) echo.MiddlewareFunc {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			now := time.Now()

			mu.Lock()
			b, ok := buckets[key]
			if !ok {
				b = &bucket{tokens: rps, last: now}
				buckets[key] = b
			}
			elapsed := now.Sub(b.last).Seconds()
			if elapsed > 0 {
				b.tokens += elapsed * rps
				if b.tokens > rps {
					b.tokens = rps
				}
				b.last = now
			}
			allowed := b.tokens >= 1
			if allowed {
				b.tokens--
			}
			mu.Unlock()

			if !allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": "Too Many Requests",
				})
			}
			return next(c)
		}
	}
}
