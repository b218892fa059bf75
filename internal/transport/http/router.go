package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/config"
	"github.com/chatUnique/keyguard-pro/internal/health"
	"github.com/chatUnique/keyguard-pro/internal/middleware"
	"github.com/chatUnique/keyguard-pro/internal/monitoring"
	"github.com/chatUnique/keyguard-pro/internal/relay"
	"github.com/chatUnique/keyguard-pro/internal/service"
	"github.com/chatUnique/keyguard-pro/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	KeyService     *service.KeyService
	BatchService   *service.BatchService
	NetworkService *service.NetworkService
	CustomService  *service.CustomRequestService
	Forwarder      *relay.Forwarder
	JobTokens      middleware.JobTokenValidator
	WebSocketHub   *websocket.Hub            // 可选
	Metrics        *monitoring.Metrics       // 可选，为 nil 时不暴露 /metrics
	Health         *health.HealthChecker     // 可选，存活与就绪探针
	Status         *monitoring.HealthChecker // 可选，/health 汇总报告
	Alerts         *monitoring.AlertManager  // 可选
	RelayLimiter   *middleware.IPRateLimiter // 可选，中转端点按 IP 限流
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(mm.PanicRecovery())
		router.Use(mm.HTTPMetrics())
	} else {
		router.Use(middleware.RecoveryHandler(log, nil))
	}
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	// 批量导入和中转请求允许更大的请求体
	router.Use(middleware.DynamicBodySizeLimit(map[string]int64{
		"/v1/batches":       middleware.BatchBodyLimit,
		"/v1/batches/parse": middleware.BatchBodyLimit,
		"/api/proxy":        middleware.RelayBodyLimit,
	}, middleware.DefaultBodyLimit))

	router.Use(gincors.New(corsConfig(deps.Config)))

	systemHandler := NewSystemHandler(deps.Status, deps.Alerts)
	keyHandler := NewKeyHandler(deps.KeyService, log)
	batchHandler := NewBatchHandler(deps.BatchService, log)
	relayHandler := NewRelayHandler(deps.Forwarder, relayRecorder(deps.Metrics), log)
	networkHandler := NewNetworkHandler(deps.NetworkService)
	customHandler := NewCustomHandler(deps.CustomService, log)

	jobAuth := middleware.NewJobAuth(deps.JobTokens, log)
	jsonOnly := middleware.ValidateContentType("application/json")

	// Swagger 文档，界面需要放宽 CSP
	router.GET("/swagger/*any", relaxCSP(), ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", systemHandler.Health)
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== Relay（中转协议，不使用统一响应） ==========
	proxyChain := []gin.HandlerFunc{jsonOnly}
	if deps.RelayLimiter != nil {
		proxyChain = append(proxyChain, deps.RelayLimiter.Middleware(relayHandler.RejectRateLimited))
	}
	proxyChain = append(proxyChain, relayHandler.Proxy)
	router.POST("/api/proxy", proxyChain...)

	v1 := router.Group("/v1")
	{
		v1.GET("/providers", keyHandler.ListProviders)
		v1.POST("/keys/validate", jsonOnly, keyHandler.ValidateKey)

		// ========== Batch Routes ==========
		batchRoutes := v1.Group("/batches")
		{
			batchRoutes.POST("/parse", jsonOnly, batchHandler.ParseBatch)
			batchRoutes.POST("", jsonOnly, batchHandler.CreateBatch)

			// 需要任务令牌的端点
			batchRoutes.GET("/:id", jobAuth.RequireJobToken(), batchHandler.GetBatch)
			batchRoutes.POST("/:id/pause", jobAuth.RequireJobToken(), batchHandler.PauseBatch)
			batchRoutes.POST("/:id/resume", jobAuth.RequireJobToken(), batchHandler.ResumeBatch)
			batchRoutes.POST("/:id/stop", jobAuth.RequireJobToken(), batchHandler.StopBatch)

			// WebSocket 在握手时自行校验令牌
			if deps.WebSocketHub != nil {
				batchRoutes.GET("/:id/ws", websocket.HandleWebSocket(deps.WebSocketHub))
			}
		}

		v1.GET("/network/status", networkHandler.GetStatus)

		// ========== Custom Request Routes ==========
		customRoutes := v1.Group("/custom")
		{
			customRoutes.POST("/execute", jsonOnly, customHandler.Execute)
			customRoutes.POST("/validate", jsonOnly, customHandler.Validate)
			customRoutes.GET("/templates", customHandler.ListTemplates)
		}

		v1.GET("/alerts", systemHandler.ListAlerts)
	}

	return router
}

func corsConfig(cfg *config.Config) gincors.Config {
	origins := []string{"*"}
	if cfg != nil && len(cfg.CORS.AllowedOrigins) > 0 {
		origins = cfg.CORS.AllowedOrigins
	}

	corsCfg := gincors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Job-Token"},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsCfg.AllowOrigins {
		if origin == "*" {
			corsCfg.AllowCredentials = false
			break
		}
	}
	return corsCfg
}

func relaxCSP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		c.Next()
	}
}

// relayRecorder 避免把 nil *Metrics 包装成非 nil 接口
func relayRecorder(m *monitoring.Metrics) RelayRecorder {
	if m == nil {
		return nil
	}
	return m
}
