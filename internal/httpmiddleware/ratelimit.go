package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter caps request rates per client IP with in-process token
// buckets. State lives in memory and resets on restart; the check never
// touches a backend, so a slow store cannot stall the hot path.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	burst   float64
	perMin  float64
}

type clientBucket struct {
	tokens   float64
	refilled time.Time
}

// NewRateLimiter allows perMinute requests per IP, with a burst of the
// same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		burst:   float64(perMinute),
		perMin:  float64(perMinute),
	}
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{tokens: rl.burst, refilled: now}
		rl.clients[ip] = b
	}
	b.tokens += now.Sub(b.refilled).Minutes() * rl.perMin
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.refilled = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
