package daemon

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5.0, 10)
	defer rl.Stop()

	assert.NotNil(t, rl)
	assert.Equal(t, 5.0, rl.rate)
	assert.Equal(t, 10, rl.burst)
	assert.NotNil(t, rl.cleanupTicker)
	assert.NotNil(t, rl.stopCleanup)
}

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(5.0, 10)
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed within burst", i+1)
	}
}

func TestRateLimiter_DenyExceedingBurst(t *testing.T) {
	rl := NewRateLimiter(5.0, 10)
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		rl.Allow("192.168.1.1")
	}

	assert.False(t, rl.Allow("192.168.1.1"), "request exceeding burst should be denied")
}

func TestRateLimiter_RefillTokens(t *testing.T) {
	rl := NewRateLimiter(5.0, 10)
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		rl.Allow("192.168.1.1")
	}
	assert.False(t, rl.Allow("192.168.1.1"))

	// 200ms at 5 tokens/second refills one token.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, rl.Allow("192.168.1.1"))
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	rl := NewRateLimiter(5.0, 2)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")
	assert.False(t, rl.Allow("10.0.0.1"))

	// A second client has its own bucket.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_AllowNCharging(t *testing.T) {
	rl := NewRateLimiter(5.0, 6)
	defer rl.Stop()

	assert.True(t, rl.AllowN("10.0.0.1", 3))
	assert.True(t, rl.AllowN("10.0.0.1", 3))
	assert.False(t, rl.AllowN("10.0.0.1", 1), "budget is spent after two three-token requests")
}

func TestRateLimiter_CostAboveBurstNeverAdmitted(t *testing.T) {
	rl := NewRateLimiter(5.0, 2)
	defer rl.Stop()

	assert.False(t, rl.AllowN("10.0.0.1", 3))
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1.0, 1)
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware(1))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate limit exceeded")
}

func TestRateLimiter_MiddlewareWeightedCost(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(0.001, 4)
	defer rl.Stop()

	router := gin.New()
	router.GET("/expensive", rl.Middleware(3), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/cheap", rl.Middleware(1), func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/expensive", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	// One token left: another expensive request is rejected while a cheap
	// one still passes.
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/expensive", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cheap", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}
