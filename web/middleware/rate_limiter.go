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
	UploadsPerMinute  int           // Max PDF uploads per client per minute
	MessagesPerMinute int           // Max chat messages per client per minute
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often to clean up old entries
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

	// Refill tokens based on elapsed time
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

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// ClientRateLimiter manages upload and message rate limits per client IP
type ClientRateLimiter struct {
	config        RateLimiterConfig
	uploadLimits  map[string]*TokenBucket
	messageLimits map[string]*TokenBucket
	mu            sync.RWMutex
	logger        *zap.Logger
	stopCleanup   chan struct{}
}

// NewClientRateLimiter creates a new per-client rate limiter
func NewClientRateLimiter(config RateLimiterConfig, logger *zap.Logger) *ClientRateLimiter {
	limiter := &ClientRateLimiter{
		config:        config,
		uploadLimits:  make(map[string]*TokenBucket),
		messageLimits: make(map[string]*TokenBucket),
		logger:        logger,
		stopCleanup:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go limiter.cleanupRoutine()

	return limiter
}

// cleanupRoutine periodically removes stale entries
func (crl *ClientRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(crl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			crl.cleanup()
		case <-crl.stopCleanup:
			return
		}
	}
}

// cleanup drops all buckets once the maps grow past a bound. Idle buckets
// refill to full, so resetting them never grants extra capacity.
func (crl *ClientRateLimiter) cleanup() {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	if len(crl.messageLimits)+len(crl.uploadLimits) > 1000 {
		crl.logger.Info("Cleaning up rate limiter cache",
			zap.Int("upload_limiters", len(crl.uploadLimits)),
			zap.Int("message_limiters", len(crl.messageLimits)))
		crl.uploadLimits = make(map[string]*TokenBucket)
		crl.messageLimits = make(map[string]*TokenBucket)
	}
}

// Stop stops the cleanup routine
func (crl *ClientRateLimiter) Stop() {
	close(crl.stopCleanup)
}

// AllowUpload checks if a PDF upload can proceed for the given client
func (crl *ClientRateLimiter) AllowUpload(clientIP string) bool {
	return crl.bucketFor(crl.uploadLimits, clientIP, crl.config.UploadsPerMinute).Allow()
}

// AllowMessage checks if a chat message can be sent for the given client
func (crl *ClientRateLimiter) AllowMessage(clientIP string) bool {
	return crl.bucketFor(crl.messageLimits, clientIP, crl.config.MessagesPerMinute).Allow()
}

func (crl *ClientRateLimiter) bucketFor(limits map[string]*TokenBucket, clientIP string, perMinute int) *TokenBucket {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	bucket, exists := limits[clientIP]
	if !exists {
		bucket = NewTokenBucket(float64(crl.config.BurstSize), float64(perMinute)/60.0)
		limits[clientIP] = bucket
	}
	return bucket
}

func (crl *ClientRateLimiter) remaining(limits map[string]*TokenBucket, clientIP string) int {
	crl.mu.RLock()
	bucket, exists := limits[clientIP]
	crl.mu.RUnlock()

	if !exists {
		return crl.config.BurstSize
	}
	return bucket.Remaining()
}

// RateLimitMiddleware creates a Gin middleware enforcing the named limit
// ("upload" or "message") per client IP.
func RateLimitMiddleware(limiter *ClientRateLimiter, limitType string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		var allowed bool
		var remaining int
		limit := limiter.config.BurstSize

		switch limitType {
		case "upload":
			allowed = limiter.AllowUpload(clientIP)
			remaining = limiter.remaining(limiter.uploadLimits, clientIP)
		case "message":
			allowed = limiter.AllowMessage(clientIP)
			remaining = limiter.remaining(limiter.messageLimits, clientIP)
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown limit type"})
			return
		}

		// Add rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if logger != nil {
				logger.Warn("Rate limit exceeded",
					zap.String("client_ip", clientIP),
					zap.String("limit_type", limitType),
					zap.Int("limit", limit))
			}

			c.Header("Retry-After", "60") // Suggest retry after 60 seconds
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
