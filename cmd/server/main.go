package main

// @title KeyGuard Pro API
// @version 1.0.0
// @description AI 服务商 API Key 验证服务：单个验证、批量任务、同源中转和出站连通性探测
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey JobToken
// @in header
// @name Authorization
// @description 创建批量任务时返回的访问令牌，格式：Bearer {token}

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/chatUnique/keyguard-pro/docs"
	"github.com/chatUnique/keyguard-pro/internal/auth"
	"github.com/chatUnique/keyguard-pro/internal/batch"
	"github.com/chatUnique/keyguard-pro/internal/config"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/health"
	"github.com/chatUnique/keyguard-pro/internal/logger"
	"github.com/chatUnique/keyguard-pro/internal/middleware"
	"github.com/chatUnique/keyguard-pro/internal/monitoring"
	"github.com/chatUnique/keyguard-pro/internal/pool"
	"github.com/chatUnique/keyguard-pro/internal/provider"
	"github.com/chatUnique/keyguard-pro/internal/relay"
	"github.com/chatUnique/keyguard-pro/internal/service"
	"github.com/chatUnique/keyguard-pro/internal/storage"
	"github.com/chatUnique/keyguard-pro/internal/storage/memory"
	"github.com/chatUnique/keyguard-pro/internal/storage/redis"
	sqlstore "github.com/chatUnique/keyguard-pro/internal/storage/sql"
	httptransport "github.com/chatUnique/keyguard-pro/internal/transport/http"
	"github.com/chatUnique/keyguard-pro/internal/validator"
	"github.com/chatUnique/keyguard-pro/internal/websocket"
)

const version = "1.0.0"

// main 启动 HTTP API、中转端点和后台任务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting keyguard server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层
	stores, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	metrics := monitoring.NewMetrics(nil)

	// 出站传输：直连 + 同源中转
	direct, err := fetch.NewDirectSender(fetch.DirectOptions{
		UpstreamProxy: cfg.Relay.UpstreamProxy,
		UserAgent:     relay.UserAgent,
	})
	if err != nil {
		log.Fatal("failed to create direct sender", zap.Error(err))
	}

	var relaySender fetch.Sender
	if cfg.Relay.Enabled {
		relaySender = fetch.NewRelaySender(cfg.RelayEndpoint(), &http.Client{})
	}

	prober := fetch.NewProber(direct, relaySender, stores.probes, fetch.ProberConfig{
		URL:           cfg.Probe.URL,
		DirectTimeout: cfg.Probe.DirectTimeout,
		RelayTimeout:  cfg.Probe.RelayTimeout,
		CacheTTL:      cfg.Probe.CacheTTL,
	}, log)

	pref := fetch.Preference{
		RelayEnabled: cfg.Relay.Enabled,
		ForceRelay:   cfg.Relay.Force,
		AutoDetect:   cfg.Relay.AutoDetect,
	}
	clients := fetch.NewFactory(direct, relaySender, prober, pref, log, fetch.WithObserver(metrics))

	log.Info("outbound transport configured",
		zap.Bool("relay_enabled", pref.RelayEnabled),
		zap.Bool("force_relay", pref.ForceRelay),
		zap.Bool("auto_detect", pref.AutoDetect),
		zap.String("relay_endpoint", cfg.RelayEndpoint()),
		zap.Bool("upstream_proxy", cfg.Relay.UpstreamProxy != ""),
	)

	// 服务层
	keyService := service.NewKeyService(validator.New(provider.NewRegistry(), nil, log), clients, metrics, log)

	tokens := auth.NewTokenManager(cfg.Auth.JobTokenSecret, cfg.Auth.Issuer, cfg.Auth.JobTokenTTL)
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, tokens, log)

	// 快照写入走协程池，避免阻塞调度器
	workers := pool.NewWorkerPool(4, 256, log)

	jobs := batch.NewManager(batch.ManagerConfig{
		MaxItems:      cfg.Batch.MaxItems,
		MaxActiveJobs: cfg.Batch.MaxActiveJobs,
		JobTTL:        cfg.Batch.JobTTL,
		Defaults: batch.Config{
			Concurrency: cfg.Batch.Concurrency,
			MaxRetries:  cfg.Batch.MaxRetries,
			RetryDelay:  cfg.Batch.RetryDelay,
			Timeout:     cfg.Batch.Timeout,
		},
	}, batch.ManagerDeps{
		Factory:  keyService.BatchValidator,
		Tokens:   tokens,
		Store:    stores.jobs,
		Pool:     workers,
		Notifier: wsHub,
		Observer: metrics,
		Logger:   log,
	})

	batchService := service.NewBatchService(jobs, log)
	networkService := service.NewNetworkService(prober, pref, cfg.RelayEndpoint(), metrics, log)
	// 测试器在连接时拒绝内网地址，不经过出站代理
	customSender := fetch.Sender(direct)
	if !cfg.Custom.AllowPrivateHosts {
		customSender, err = fetch.NewDirectSender(fetch.DirectOptions{UserAgent: relay.UserAgent, BlockPrivate: true})
		if err != nil {
			log.Fatal("failed to create custom request sender", zap.Error(err))
		}
	}
	customService := service.NewCustomRequestService(customSender, cfg.Custom.AllowPrivateHosts, log)

	// 中转每一跳都校验白名单
	allowList := relay.NewAllowList(cfg.Relay.AllowedDomains...)
	relayUpstream, err := fetch.NewDirectSender(fetch.DirectOptions{
		UpstreamProxy: cfg.Relay.UpstreamProxy,
		UserAgent:     relay.UserAgent,
		CheckRedirect: allowList.CheckRedirect,
	})
	if err != nil {
		log.Fatal("failed to create relay sender", zap.Error(err))
	}
	forwarder := relay.NewForwarder(allowList, relayUpstream, cfg.Relay.DefaultTimeout, log)

	var relayLimiter *middleware.IPRateLimiter
	if cfg.Relay.RateLimit > 0 {
		relayLimiter = middleware.NewIPRateLimiter(cfg.Relay.RateLimit, cfg.Relay.RateBurst, 0, log).
			WithExemption(middleware.LocalDirect)
	}

	// 健康检查与告警
	healthChecker := health.NewHealthChecker(stores.jobs, log)
	if stores.redis != nil {
		healthChecker.AddReadinessDependency("redis", stores.redis)
	}

	statusChecker := monitoring.NewHealthChecker(log, version, cfg.Monitor.Environment)
	statusChecker.AddCheck("job_store", monitoring.PingCheck(stores.jobs.Ping, monitoring.HealthStatusUnhealthy))
	if stores.redis != nil {
		statusChecker.AddCheck("redis", monitoring.PingCheck(stores.redis.Ping, monitoring.HealthStatusDegraded))
	}
	statusChecker.AddCheck("connectivity", monitoring.ConnectivityCheck(networkService.State))
	statusChecker.AddCheck("memory", monitoring.MemoryCheck(512))
	statusChecker.AddCheck("goroutines", monitoring.GoroutineCheck(10000))

	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.Monitor.AlertWebhook != "" {
		alertManager.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Monitor.AlertWebhook, direct, log))
	}
	alertManager.AddRule(monitoring.ConnectivityRule(networkService.State))
	alertManager.AddRule(monitoring.HighOutboundErrorRateRule(metrics, 50, 20))
	alertManager.AddRule(monitoring.StoreUnavailableRule(stores.jobs.Ping))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512))

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		KeyService:     keyService,
		BatchService:   batchService,
		NetworkService: networkService,
		CustomService:  customService,
		Forwarder:      forwarder,
		JobTokens:      tokens,
		WebSocketHub:   wsHub,
		Metrics:        metrics,
		Health:         healthChecker,
		Status:         statusChecker,
		Alerts:         alertManager,
		RelayLimiter:   relayLimiter,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	workers.Start(groupCtx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", cfg.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 清理过期任务
	group.Go(func() error {
		jobs.Run(groupCtx, 10*time.Minute)
		log.Info("job cleanup task stopped")
		return nil
	})

	if relayLimiter != nil {
		group.Go(func() error {
			relayLimiter.Run(groupCtx)
			return nil
		})
	}

	if cfg.Probe.RefreshInterval > 0 {
		group.Go(func() error {
			log.Info("starting connectivity probes", zap.Duration("interval", cfg.Probe.RefreshInterval))
			networkService.RunProbes(groupCtx, cfg.Probe.RefreshInterval)
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting monitoring services", zap.Duration("interval", cfg.Monitor.CheckInterval))
		alertManager.StartMonitoring(groupCtx, cfg.Monitor.CheckInterval)
		return nil
	})

	// WebSocket 连接数指标
	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateWebSocketClients(wsHub.ClientCount())
			}
		}
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			log.Warn("batch jobs did not stop in time", zap.Error(err))
		}
		workers.Stop()
		stores.close(log)

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// storageSet 任务存储、探测缓存以及可选的 Redis 连接
type storageSet struct {
	jobs   storage.JobStore
	probes storage.ConnectivityCache
	redis  *redis.Client

	// jobsOnRedis 任务存储与 Redis 共用连接，关闭任务存储即关闭连接
	jobsOnRedis bool
}

func (s *storageSet) close(log *zap.Logger) {
	if err := s.jobs.Close(); err != nil {
		log.Warn("job store close warning", zap.Error(err))
	}
	if s.redis != nil && !s.jobsOnRedis {
		if err := s.redis.Close(); err != nil {
			log.Warn("redis close warning", zap.Error(err))
		}
	}
}

// initializeStorage 按配置选择任务存储
//
// 配置了数据库时快照写入 SQL，否则有 Redis 时写入 Redis，都没有时使用内存。
// 配置了 Redis 时探测结果在多个实例之间共享。
func initializeStorage(cfg *config.Config, log *zap.Logger) (*storageSet, error) {
	set := &storageSet{probes: memory.NewProbeCache(cfg.Probe.CacheTTL)}

	if cfg.Redis.Address != "" {
		client, err := redis.New(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		set.redis = client
		set.probes = redis.NewProbeCache(client)
	}

	switch {
	case cfg.Database.Type != "":
		store, err := sqlstore.NewStore(sqlstore.Options{
			Type:            cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			AutoMigrate:     true,
		})
		if err != nil {
			if set.redis != nil {
				_ = set.redis.Close()
			}
			return nil, fmt.Errorf("failed to create database store: %w", err)
		}
		set.jobs = store
		log.Info("using database job store", zap.String("type", cfg.Database.Type))
	case set.redis != nil:
		set.jobs = redis.NewJobStore(set.redis, cfg.Batch.JobTTL)
		set.jobsOnRedis = true
		log.Info("using redis job store", zap.String("address", cfg.Redis.Address))
	default:
		set.jobs = memory.NewJobStore()
		log.Info("using memory job store (single instance)")
	}

	return set, nil
}
