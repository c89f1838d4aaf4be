package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
)

// RateLimiter 基于 Token Bucket 的查询接口限流器
type RateLimiter struct {
	limiter       *rate.Limiter
	rejectedCount atomic.Int64
}

// NewRateLimiter 创建限流器。
// ratePerSec: 每秒允许的请求数；burst: 突发容量。
func NewRateLimiter(ratePerSec, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow 检查是否允许请求（非阻塞）
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// RejectedCount 被拒绝的请求数（累计）
func (l *RateLimiter) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// RateLimit 返回限流中间件。未启用时原样放行。
func RateLimit(cfg cfgpkg.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enable {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := NewRateLimiter(cfg.RatePerSec, cfg.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			if logger != nil {
				logger.Warn("request rate limited",
					zap.String("path", c.Request.URL.Path),
					zap.Int64("rejected_total", limiter.RejectedCount()))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
