package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const rateWindow = time.Minute

// clientWindow counts one client's requests in the current window.
type clientWindow struct {
	count int
	start time.Time
}

// RateLimiter enforces a per-IP budget of maxRequests per minute. Rejected
// requests get 429 with a Retry-After header. A non-positive budget disables
// the limiter.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	if maxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	clients := make(map[string]*clientWindow)

	// Cleanup stale entries every 5 minutes
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, w := range clients {
				if now.Sub(w.start) > 2*rateWindow {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		w, ok := clients[ip]
		if !ok || now.Sub(w.start) > rateWindow {
			w = &clientWindow{start: now}
			clients[ip] = w
		}
		if w.count >= maxRequests {
			retryAfter := int(w.start.Add(rateWindow).Sub(now).Seconds()) + 1
			mu.Unlock()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Maximum " + strconv.Itoa(maxRequests) + " requests per minute.",
			})
			return
		}
		w.count++
		mu.Unlock()

		c.Next()
	}
}
