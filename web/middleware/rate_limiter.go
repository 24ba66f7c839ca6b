package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MessagesPerMinute int           // Sustained chat requests per client per minute
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often idle clients are forgotten
	IdleTTL           time.Duration // A client idle this long loses its bucket
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := time.Since(tb.lastRefill).Seconds()
	return int(min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate)))
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// ClientRateLimiter keeps one bucket per client address. Chat history lives on
// the client, so the address is the only stable key the server has.
type ClientRateLimiter struct {
	config      RateLimiterConfig
	buckets     map[string]*TokenBucket
	mu          sync.Mutex
	logger      *zap.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

func NewClientRateLimiter(config RateLimiterConfig, logger *zap.Logger) *ClientRateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	limiter := &ClientRateLimiter{
		config:      config,
		buckets:     make(map[string]*TokenBucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	go limiter.cleanupRoutine()
	return limiter
}

func (l *ClientRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets that have been idle longer than IdleTTL.
func (l *ClientRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, bucket := range l.buckets {
		if now.Sub(bucket.idleSince()) > l.config.IdleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("Cleaned up rate limiter buckets", zap.Int("removed", removed), zap.Int("remaining", len(l.buckets)))
	}
}

func (l *ClientRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *ClientRateLimiter) bucket(client string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[client]
	if !ok {
		b = NewTokenBucket(float64(l.config.BurstSize), float64(l.config.MessagesPerMinute)/60.0)
		l.buckets[client] = b
	}
	return b
}

// Allow consumes a token for client and reports the remaining allowance.
func (l *ClientRateLimiter) Allow(client string) (allowed bool, remaining int) {
	b := l.bucket(client)
	allowed = b.Allow()
	return allowed, b.Remaining()
}

// RateLimitMiddleware rejects clients that exceed their bucket with 429.
func RateLimitMiddleware(limiter *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		allowed, remaining := limiter.Allow(client)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.BurstSize))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if logger := LoggerFrom(c); logger != nil {
				logger.Warn("Rate limit exceeded", zap.String("client", client))
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"output":      "Too many requests. Please wait a moment and try again.",
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			return
		}
		c.Next()
	}
}
