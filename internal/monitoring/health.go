package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck 单项检查结果
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthReport 健康报告
type HealthReport struct {
	Status      HealthStatus  `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Uptime      time.Duration `json:"uptime"`
	Checks      []HealthCheck `json:"checks"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
}

// CheckFunc 检查函数，返回状态和说明
type CheckFunc func(ctx context.Context) (HealthStatus, string)

type namedCheck struct {
	name string
	fn   CheckFunc
}

// HealthChecker 汇总各项检查生成健康报告
type HealthChecker struct {
	mu        sync.RWMutex
	checks    []namedCheck
	logger    *zap.Logger
	startTime time.Time
	version   string
	env       string
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger, version, env string) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		logger:    logger,
		startTime: time.Now(),
		version:   version,
		env:       env,
	}
}

// AddCheck 注册检查项
func (hc *HealthChecker) AddCheck(name string, fn CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, namedCheck{name: name, fn: fn})
}

// CheckHealth 执行全部检查，任一不健康则整体不健康
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	hc.mu.RLock()
	checks := append([]namedCheck(nil), hc.checks...)
	hc.mu.RUnlock()

	report := &HealthReport{
		Status:      HealthStatusHealthy,
		Timestamp:   time.Now(),
		Uptime:      time.Since(hc.startTime),
		Version:     hc.version,
		Environment: hc.env,
		Checks:      make([]HealthCheck, 0, len(checks)),
	}

	for _, c := range checks {
		start := time.Now()
		status, message := c.fn(ctx)
		report.Checks = append(report.Checks, HealthCheck{
			Name:        c.name,
			Status:      status,
			Message:     message,
			Duration:    time.Since(start),
			LastChecked: start,
		})

		switch status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status != HealthStatusUnhealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}

	return report
}

// IsHealthy 检查系统是否健康
func (hc *HealthChecker) IsHealthy(ctx context.Context) bool {
	return hc.CheckHealth(ctx).Status == HealthStatusHealthy
}

// GetUptime 获取系统运行时间
func (hc *HealthChecker) GetUptime() time.Duration {
	return time.Since(hc.startTime)
}

// StartPeriodicHealthCheck 启动定期健康检查
func (hc *HealthChecker) StartPeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := hc.CheckHealth(ctx)
			fields := []zap.Field{
				zap.String("status", string(report.Status)),
				zap.Duration("uptime", report.Uptime),
			}
			switch report.Status {
			case HealthStatusUnhealthy:
				hc.logger.Error("System health check failed", fields...)
			case HealthStatusDegraded:
				hc.logger.Warn("System health check degraded", fields...)
			default:
				hc.logger.Debug("System health check passed", fields...)
			}
		}
	}
}

// ========== 内置检查 ==========

// PingCheck 连接检查，失败时返回 failStatus
func PingCheck(ping func(ctx context.Context) error, failStatus HealthStatus) CheckFunc {
	return func(ctx context.Context) (HealthStatus, string) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			return failStatus, fmt.Sprintf("Connection failed: %v", err)
		}
		return HealthStatusHealthy, "Connection is healthy"
	}
}

// ConnectivityCheck 出站连通性检查，只读取探测器的当前状态
func ConnectivityCheck(state func() fetch.ProbeState) CheckFunc {
	return func(context.Context) (HealthStatus, string) {
		s := state()
		if s == fetch.ProbeNeither {
			return HealthStatusDegraded, "No outbound path reachable"
		}
		return HealthStatusHealthy, fmt.Sprintf("Connectivity %s", s)
	}
}

// MemoryCheck 内存使用检查
func MemoryCheck(limitMB float64) CheckFunc {
	return func(context.Context) (HealthStatus, string) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		usageMB := float64(m.Alloc) / 1024 / 1024
		if usageMB > limitMB {
			return HealthStatusDegraded, fmt.Sprintf("High memory usage: %.2f MB", usageMB)
		}
		return HealthStatusHealthy, fmt.Sprintf("Memory usage: %.2f MB", usageMB)
	}
}

// GoroutineCheck Goroutine 数量检查
func GoroutineCheck(limit int) CheckFunc {
	return func(context.Context) (HealthStatus, string) {
		n := runtime.NumGoroutine()
		if n > limit {
			return HealthStatusDegraded, fmt.Sprintf("High goroutine count: %d", n)
		}
		return HealthStatusHealthy, fmt.Sprintf("Goroutines: %d", n)
	}
}
