package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bitswalk/sketchforge/src/common/errors"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig bounds how often one client may start toolchain runs
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active
	Enabled bool
	// CompilesPerMin is the max compile requests per minute per client
	CompilesPerMin int
	// LookupsPerMin is the max firmware lookups per minute per client
	LookupsPerMin int
}

// DefaultRateLimitConfig returns the default limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        true,
		CompilesPerMin: 10,
		LookupsPerMin:  30,
	}
}

// window tracks request count within a time window
type window struct {
	count     int
	expiresAt time.Time
}

// RateLimiter is a fixed-window rate limiter keyed by arbitrary string
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	config  RateLimitConfig
	now     func() time.Time
	stopCh  chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request for key fits under limit, counting it
// when it does
func (rl *RateLimiter) Allow(key string, limit int) bool {
	if !rl.config.Enabled || limit <= 0 {
		return true
	}

	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || now.After(w.expiresAt) {
		rl.windows[key] = &window{count: 1, expiresAt: now.Add(time.Minute)}
		return true
	}

	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := rl.now()
			rl.mu.Lock()
			for key, w := range rl.windows {
				if now.After(w.expiresAt) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop terminates the background cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// rateLimit returns middleware allowing limit requests per minute per
// client for one route family
func (a *API) rateLimit(route string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.limiter == nil {
			c.Next()
			return
		}
		if !a.limiter.Allow(route+":"+c.ClientIP(), limit) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errors.ErrRateLimited.ToResponse())
			return
		}
		c.Next()
	}
}
