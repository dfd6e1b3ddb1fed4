// internal/api/middleware.go
package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestID tags every request with an id, reusing a sane incoming header
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one line per request
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Recovery turns a handler panic into a logged 500
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Stack("stack"),
		)
		NewResponseHelper().InternalError(c, "internal error")
		c.Abort()
	})
}

// corsMiddleware allows cross-origin calls to the JSON API
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter hands out one token bucket per key. Idle buckets expire
// from the cache after an hour.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	visitors *cache.Cache
}

// NewRateLimiter allows perMinute requests per key with the given burst
func NewRateLimiter(perMinute int, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		visitors: cache.New(time.Hour, 10*time.Minute),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.visitors.Get(key); ok {
		rl.visitors.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.visitors.Add(key, l, cache.DefaultExpiration); err != nil {
		// lost the race, use the winner's bucket
		if existing, ok := rl.visitors.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

// Allow takes a token for key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// retryAfter reports how long key must wait before its next token
func (rl *RateLimiter) retryAfter(key string) time.Duration {
	r := rl.limiter(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// RateLimitMiddleware rejects requests over the key's rate. onLimit writes
// the rejection; a nil onLimit writes the JSON envelope.
func RateLimitMiddleware(rl *RateLimiter, keyFunc func(*gin.Context) string, onLimit gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.burst))

		if !rl.Allow(key) {
			wait := rl.retryAfter(key)
			c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(wait.Seconds()))))
			if onLimit != nil {
				onLimit(c)
			} else {
				NewResponseHelper().Error(c, http.StatusTooManyRequests, ErrorRateLimited, "rate limit exceeded")
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimitByIP keys the limiter on the client address
func RateLimitByIP(rl *RateLimiter, onLimit gin.HandlerFunc) gin.HandlerFunc {
	return RateLimitMiddleware(rl, func(c *gin.Context) string {
		return c.ClientIP()
	}, onLimit)
}
