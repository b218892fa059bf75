package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJobTokenSecret = "change-me-in-production"

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色控制台输出
	File        string // 日志文件路径，为空时只输出到标准输出
	MaxSize     int    // 单个日志文件最大尺寸 (MB)
	MaxBackups  int    // 保留的旧日志文件数量
	MaxAge      int    // 旧日志文件保留天数
}

// RelayConfig 定义中转路径配置
type RelayConfig struct {
	Enabled        bool          // 是否允许使用中转
	Force          bool          // 强制所有请求走中转
	AutoDetect     bool          // 按探测结果自动选择路径
	URL            string        // 中转端点，为空时使用本服务的 /api/proxy
	DefaultTimeout time.Duration // 中转请求默认超时
	AllowedDomains []string      // 在内置白名单之外额外允许的域名
	UpstreamProxy  string        // 直连出站代理: http://、https://、socks5://
	RateLimit      float64       // 单个客户端 IP 每秒请求数
	RateBurst      int           // 令牌桶容量
}

// ProbeConfig 定义连通性探测配置
type ProbeConfig struct {
	URL             string        // 探测地址，未带密钥时应返回 401
	DirectTimeout   time.Duration // 直连探测超时
	RelayTimeout    time.Duration // 中转探测超时
	CacheTTL        time.Duration // 探测结果缓存时间
	RefreshInterval time.Duration // 后台定时探测间隔，0 表示关闭
}

// BatchConfig 定义批量验证配置
type BatchConfig struct {
	Concurrency   int           // 默认并发数
	MaxRetries    int           // 默认最大重试次数
	RetryDelay    time.Duration // 重试基础间隔
	Timeout       time.Duration // 单次验证超时
	MaxItems      int           // 单个任务最多条目数
	MaxActiveJobs int           // 同时运行的任务上限
	JobTTL        time.Duration // 任务结束后的保留时间
}

// AuthConfig 定义任务令牌配置
type AuthConfig struct {
	JobTokenSecret string        // 签名密钥，必须至少 32 字符
	Issuer         string        // 签发者标识，默认 "keyguard-pro"
	JobTokenTTL    time.Duration // 任务令牌有效期
}

// DatabaseConfig 定义数据库连接配置
type DatabaseConfig struct {
	Type            string        // "mysql"、"postgres" 或 "pgx"，为空时使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 配置，地址为空表示不使用 Redis
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// CustomConfig 定义自定义请求测试配置
type CustomConfig struct {
	AllowPrivateHosts bool // 允许请求内网和回环地址
}

// MonitorConfig 定义健康报告和告警配置
type MonitorConfig struct {
	Environment   string        // 运行环境标识，写入健康报告
	CheckInterval time.Duration // 告警规则检查间隔
	AlertWebhook  string        // 告警推送地址，为空时只写日志
}

// Config 是系统配置的根结构体
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Log      LogConfig
	Relay    RelayConfig
	Probe    ProbeConfig
	Batch    BatchConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Custom   CustomConfig
	Monitor  MonitorConfig
}

// Address 返回 HTTP 监听地址
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RelayEndpoint 返回中转端点，未配置时指向本服务
func (c *Config) RelayEndpoint() string {
	if c.Relay.URL != "" {
		return c.Relay.URL
	}
	return fmt.Sprintf("http://127.0.0.1:%d/api/proxy", c.Server.Port)
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 优先级：系统环境变量 > .env 文件 > 默认值。
// 环境变量前缀为 KEYGUARD_，例如 KEYGUARD_SERVER_PORT、KEYGUARD_AUTH_JOB_TOKEN_SECRET。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("keyguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("relay.enabled", true)
	viper.SetDefault("relay.force", false)
	viper.SetDefault("relay.auto_detect", true)
	viper.SetDefault("relay.url", "")
	viper.SetDefault("relay.default_timeout", "15s")
	viper.SetDefault("relay.allowed_domains", "")
	viper.SetDefault("relay.upstream_proxy", "")
	viper.SetDefault("relay.rate_limit", 20)
	viper.SetDefault("relay.rate_burst", 40)
	viper.SetDefault("probe.url", "https://api.openai.com/v1/models")
	viper.SetDefault("probe.direct_timeout", "3s")
	viper.SetDefault("probe.relay_timeout", "5s")
	viper.SetDefault("probe.cache_ttl", "5m")
	viper.SetDefault("probe.refresh_interval", "0s")
	viper.SetDefault("batch.concurrency", 5)
	viper.SetDefault("batch.max_retries", 3)
	viper.SetDefault("batch.retry_delay", "1s")
	viper.SetDefault("batch.timeout", "30s")
	viper.SetDefault("batch.max_items", 1000)
	viper.SetDefault("batch.max_active_jobs", 10)
	viper.SetDefault("batch.job_ttl", "24h")
	viper.SetDefault("auth.job_token_secret", defaultJobTokenSecret)
	viper.SetDefault("auth.issuer", "keyguard-pro")
	viper.SetDefault("auth.job_token_ttl", "24h")
	viper.SetDefault("database.type", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("custom.allow_private_hosts", false)
	viper.SetDefault("monitor.environment", "production")
	viper.SetDefault("monitor.check_interval", "1m")
	viper.SetDefault("monitor.alert_webhook", "")

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	relayTimeout, err := time.ParseDuration(viper.GetString("relay.default_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay.default_timeout: %w", err)
	}

	directProbe, err := time.ParseDuration(viper.GetString("probe.direct_timeout"))
	if err != nil {
		directProbe = 3 * time.Second
	}
	relayProbe, err := time.ParseDuration(viper.GetString("probe.relay_timeout"))
	if err != nil {
		relayProbe = 5 * time.Second
	}
	probeTTL, err := time.ParseDuration(viper.GetString("probe.cache_ttl"))
	if err != nil {
		probeTTL = 5 * time.Minute
	}
	probeInterval, err := time.ParseDuration(viper.GetString("probe.refresh_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid probe.refresh_interval: %w", err)
	}

	retryDelay, err := time.ParseDuration(viper.GetString("batch.retry_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid batch.retry_delay: %w", err)
	}
	batchTimeout, err := time.ParseDuration(viper.GetString("batch.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid batch.timeout: %w", err)
	}
	jobTTL, err := time.ParseDuration(viper.GetString("batch.job_ttl"))
	if err != nil {
		jobTTL = 24 * time.Hour
	}

	concurrency := viper.GetInt("batch.concurrency")
	if concurrency <= 0 {
		concurrency = 5
	}
	maxRetries := viper.GetInt("batch.max_retries")
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxItems := viper.GetInt("batch.max_items")
	if maxItems <= 0 {
		maxItems = 1000
	}

	tokenTTL, err := time.ParseDuration(viper.GetString("auth.job_token_ttl"))
	if err != nil {
		tokenTTL = 24 * time.Hour
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	checkInterval, err := time.ParseDuration(viper.GetString("monitor.check_interval"))
	if err != nil || checkInterval <= 0 {
		checkInterval = time.Minute
	}

	dbType := strings.ToLower(strings.TrimSpace(viper.GetString("database.type")))
	switch dbType {
	case "", "mysql", "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported database.type %q", dbType)
	}

	secret := viper.GetString("auth.job_token_secret")

	// 安全检查：禁止使用默认的签名密钥
	if secret == defaultJobTokenSecret {
		return nil, fmt.Errorf("SECURITY ERROR: job token secret cannot be the default value. Please set KEYGUARD_AUTH_JOB_TOKEN_SECRET environment variable")
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: job token secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
			MaxSize:     viper.GetInt("log.max_size"),
			MaxBackups:  viper.GetInt("log.max_backups"),
			MaxAge:      viper.GetInt("log.max_age"),
		},
		Relay: RelayConfig{
			Enabled:        viper.GetBool("relay.enabled"),
			Force:          viper.GetBool("relay.force"),
			AutoDetect:     viper.GetBool("relay.auto_detect"),
			URL:            strings.TrimSpace(viper.GetString("relay.url")),
			DefaultTimeout: relayTimeout,
			AllowedDomains: parseDomains(viper.GetString("relay.allowed_domains")),
			UpstreamProxy:  strings.TrimSpace(viper.GetString("relay.upstream_proxy")),
			RateLimit:      viper.GetFloat64("relay.rate_limit"),
			RateBurst:      viper.GetInt("relay.rate_burst"),
		},
		Probe: ProbeConfig{
			URL:             viper.GetString("probe.url"),
			DirectTimeout:   directProbe,
			RelayTimeout:    relayProbe,
			CacheTTL:        probeTTL,
			RefreshInterval: probeInterval,
		},
		Batch: BatchConfig{
			Concurrency:   concurrency,
			MaxRetries:    maxRetries,
			RetryDelay:    retryDelay,
			Timeout:       batchTimeout,
			MaxItems:      maxItems,
			MaxActiveJobs: viper.GetInt("batch.max_active_jobs"),
			JobTTL:        jobTTL,
		},
		Auth: AuthConfig{
			JobTokenSecret: secret,
			Issuer:         viper.GetString("auth.issuer"),
			JobTokenTTL:    tokenTTL,
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  strings.TrimSpace(viper.GetString("redis.address")),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Custom: CustomConfig{
			AllowPrivateHosts: viper.GetBool("custom.allow_private_hosts"),
		},
		Monitor: MonitorConfig{
			Environment:   viper.GetString("monitor.environment"),
			CheckInterval: checkInterval,
			AlertWebhook:  strings.TrimSpace(viper.GetString("monitor.alert_webhook")),
		},
	}

	if cfg.Database.Type != "" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is %q", cfg.Database.Type)
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名解析为小写数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白项
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 依次尝试当前目录和父目录的 .env，文件不存在时静默跳过
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
