package daemon

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimiter implements per-IP token bucket rate limiting for the
// resolution endpoints. Each resolution fans out into many directory
// calls, so one noisy client can exhaust the directory quota for everyone.
type RateLimiter struct {
	buckets       sync.Map // map[string]*bucket
	rate          float64  // tokens per second
	burst         int
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter allowing bursts of up to burst
// requests, refilling at rate tokens per second.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:        rate,
		burst:       burst,
		stopCleanup: make(chan struct{}),
	}

	rl.cleanupTicker = time.NewTicker(5 * time.Minute)
	go rl.cleanup()

	return rl
}

// Middleware returns a gin middleware enforcing the limit per client IP,
// charging cost tokens per request. Routes that fan out into many
// directory calls carry a higher cost than cheap ones.
func (rl *RateLimiter) Middleware(cost float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !rl.AllowN(ip, cost) {
			logrus.WithFields(logrus.Fields{
				"ip":   ip,
				"path": c.Request.URL.Path,
				"cost": cost,
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please retry later",
			})
			return
		}

		c.Next()
	}
}

// Allow charges a single token for a request from ip.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.AllowN(ip, 1)
}

// AllowN reports whether a request charging cost tokens from ip may
// proceed, consuming the tokens when it does. A cost above the burst
// capacity can never be admitted.
func (rl *RateLimiter) AllowN(ip string, cost float64) bool {
	now := time.Now()

	value, _ := rl.buckets.LoadOrStore(ip, &bucket{
		tokens:     float64(rl.burst),
		lastRefill: now,
	})

	b := value.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastRefill = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true
	}
	return false
}

// cleanup drops buckets idle for 10 minutes so memory stays bounded.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			cutoff := time.Now().Add(-10 * time.Minute)

			rl.buckets.Range(func(key, value any) bool {
				b := value.(*bucket)
				b.mu.Lock()
				stale := b.lastRefill.Before(cutoff)
				b.mu.Unlock()

				if stale {
					rl.buckets.Delete(key)
				}
				return true
			})

		case <-rl.stopCleanup:
			rl.cleanupTicker.Stop()
			return
		}
	}
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}
