package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/monitoring"
)

// MonitoringMiddleware 监控中间件
type MonitoringMiddleware struct {
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics, logger *zap.Logger) *MonitoringMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringMiddleware{
		metrics: metrics,
		logger:  logger,
	}
}

// HTTPMetrics HTTP 指标中间件
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		mm.metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
			time.Since(start),
			int64(c.Writer.Size()),
		)

		switch {
		case status == http.StatusTooManyRequests:
			mm.metrics.RecordRateLimitBlock("http")
		case status >= 500:
			mm.metrics.RecordError("http_5xx", "http")
		}
	}
}

// PanicRecovery 记录 panic 指标的恢复中间件
func (mm *MonitoringMiddleware) PanicRecovery() gin.HandlerFunc {
	return RecoveryHandler(mm.logger, mm.metrics.RecordPanic)
}
