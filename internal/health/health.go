package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探活的依赖（任务存储、Redis 等）
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultCheckTimeout 单项检查超时
const DefaultCheckTimeout = 3 * time.Second

// HealthChecker 存活与就绪检查
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，store 为就绪检查的必需依赖
func NewHealthChecker(store Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	if store != nil {
		hc.AddReadinessDependency("job-store", store)
	}

	return hc
}

// AddReadinessDependency 添加就绪检查依赖
func (hc *HealthChecker) AddReadinessDependency(name string, dep Pinger) {
	hc.health.AddReadinessCheck(name, PingCheck(dep, DefaultCheckTimeout))
}

// AddLivenessCheck 添加自定义存活检查
func (hc *HealthChecker) AddLivenessCheck(name string, check healthcheck.Check) {
	hc.health.AddLivenessCheck(name, check)
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// PingCheck 将 Pinger 包装为带超时的检查
func PingCheck(dep Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return dep.Ping(ctx)
	}
}
