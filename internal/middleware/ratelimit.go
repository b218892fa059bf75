package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chatUnique/keyguard-pro/internal/cache"
)

// DefaultLimiterIdleTTL 客户端限流器的空闲回收时间
const DefaultLimiterIdleTTL = 10 * time.Minute

// IPRateLimiter 按客户端 IP 的令牌桶限流器
type IPRateLimiter struct {
	limiters *cache.LocalCache[*rate.Limiter]
	limit    rate.Limit
	burst    int
	exempt   func(c *gin.Context) bool
	log      *zap.Logger
}

// NewIPRateLimiter 创建限流器，perSecond 为稳定速率，burst 为突发容量
func NewIPRateLimiter(perSecond float64, burst int, idleTTL time.Duration, log *zap.Logger) *IPRateLimiter {
	if idleTTL <= 0 {
		idleTTL = DefaultLimiterIdleTTL
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IPRateLimiter{
		limiters: cache.NewLocalCache[*rate.Limiter](idleTTL),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		log:      log,
	}
}

// WithExemption 设置不计入限流的请求，返回自身便于链式调用
func (l *IPRateLimiter) WithExemption(exempt func(c *gin.Context) bool) *IPRateLimiter {
	l.exempt = exempt
	return l
}

// LocalDirect 来自本机且未经反向代理的请求，例如服务自身的同源中转
func LocalDirect(c *gin.Context) bool {
	if c.GetHeader("X-Forwarded-For") != "" || c.GetHeader("X-Real-IP") != "" {
		return false
	}
	ip := net.ParseIP(c.RemoteIP())
	return ip != nil && ip.IsLoopback()
}

// Run 后台回收空闲的限流器
func (l *IPRateLimiter) Run(ctx context.Context) {
	l.limiters.Run(ctx, time.Minute)
}

// Reserve 为 key 消耗一个令牌，返回是否放行以及需要等待的时间
func (l *IPRateLimiter) Reserve(key string) (bool, time.Duration) {
	limiter := l.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	// 刷新空闲时间，活跃客户端不会被回收后重新获得满桶
	l.limiters.Set(key, limiter, 0)

	now := time.Now()
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware 超出速率时调用 reject，reject 为 nil 时返回统一 429 响应
func (l *IPRateLimiter) Middleware(reject func(c *gin.Context, retryAfter time.Duration)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.exempt != nil && l.exempt(c) {
			c.Next()
			return
		}
		ip := c.ClientIP()
		ok, wait := l.Reserve(ip)

		c.Header("X-RateLimit-Limit", strconv.FormatFloat(float64(l.limit), 'f', -1, 64))
		if ok {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		l.log.Warn("rate limit exceeded",
			zap.String("ip", ip),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("retry_after", wait),
		)

		if reject != nil {
			reject(c, wait)
			c.Abort()
			return
		}
		abortJSON(c, http.StatusTooManyRequests, "请求过于频繁，请稍后重试")
	}
}
