package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

var envKeys = []string{
	"KEYGUARD_AUTH_JOB_TOKEN_SECRET",
	"KEYGUARD_SERVER_HOST",
	"KEYGUARD_SERVER_PORT",
	"KEYGUARD_CORS_ALLOWED_ORIGINS",
	"KEYGUARD_LOG_LEVEL",
	"KEYGUARD_RELAY_FORCE",
	"KEYGUARD_RELAY_URL",
	"KEYGUARD_RELAY_ALLOWED_DOMAINS",
	"KEYGUARD_RELAY_DEFAULT_TIMEOUT",
	"KEYGUARD_BATCH_CONCURRENCY",
	"KEYGUARD_BATCH_MAX_RETRIES",
	"KEYGUARD_BATCH_RETRY_DELAY",
	"KEYGUARD_DATABASE_TYPE",
	"KEYGUARD_DATABASE_DSN",
	"KEYGUARD_CUSTOM_ALLOW_PRIVATE_HOSTS",
}

// resetEnv 清空相关环境变量，并在测试结束后恢复
func resetEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(envKeys))
	for _, key := range envKeys {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", testSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)

		assert.True(t, cfg.Relay.Enabled)
		assert.False(t, cfg.Relay.Force)
		assert.True(t, cfg.Relay.AutoDetect)
		assert.Equal(t, 15*time.Second, cfg.Relay.DefaultTimeout)
		assert.Empty(t, cfg.Relay.AllowedDomains)
		assert.Equal(t, float64(20), cfg.Relay.RateLimit)
		assert.Equal(t, 40, cfg.Relay.RateBurst)

		assert.Equal(t, "https://api.openai.com/v1/models", cfg.Probe.URL)
		assert.Equal(t, 3*time.Second, cfg.Probe.DirectTimeout)
		assert.Equal(t, 5*time.Second, cfg.Probe.RelayTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Probe.CacheTTL)
		assert.Zero(t, cfg.Probe.RefreshInterval)

		assert.Equal(t, 5, cfg.Batch.Concurrency)
		assert.Equal(t, 3, cfg.Batch.MaxRetries)
		assert.Equal(t, time.Second, cfg.Batch.RetryDelay)
		assert.Equal(t, 30*time.Second, cfg.Batch.Timeout)
		assert.Equal(t, 1000, cfg.Batch.MaxItems)
		assert.Equal(t, 10, cfg.Batch.MaxActiveJobs)
		assert.Equal(t, 24*time.Hour, cfg.Batch.JobTTL)

		assert.Equal(t, "keyguard-pro", cfg.Auth.Issuer)
		assert.Equal(t, 24*time.Hour, cfg.Auth.JobTokenTTL)
		assert.Empty(t, cfg.Database.Type)
		assert.Empty(t, cfg.Redis.Address)
		assert.False(t, cfg.Custom.AllowPrivateHosts)
		assert.Equal(t, time.Minute, cfg.Monitor.CheckInterval)
		assert.Empty(t, cfg.Monitor.AlertWebhook)

		assert.Equal(t, "0.0.0.0:8080", cfg.Address())
		assert.Equal(t, "http://127.0.0.1:8080/api/proxy", cfg.RelayEndpoint())
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", testSecret)
		os.Setenv("KEYGUARD_SERVER_HOST", "127.0.0.1")
		os.Setenv("KEYGUARD_SERVER_PORT", "9090")
		os.Setenv("KEYGUARD_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		os.Setenv("KEYGUARD_LOG_LEVEL", "debug")
		os.Setenv("KEYGUARD_RELAY_FORCE", "true")
		os.Setenv("KEYGUARD_RELAY_URL", "https://relay.example/api/proxy")
		os.Setenv("KEYGUARD_RELAY_ALLOWED_DOMAINS", "API.Internal.Example, llm.example")
		os.Setenv("KEYGUARD_RELAY_DEFAULT_TIMEOUT", "20s")
		os.Setenv("KEYGUARD_BATCH_CONCURRENCY", "8")
		os.Setenv("KEYGUARD_BATCH_MAX_RETRIES", "0")
		os.Setenv("KEYGUARD_BATCH_RETRY_DELAY", "250ms")
		os.Setenv("KEYGUARD_CUSTOM_ALLOW_PRIVATE_HOSTS", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9090", cfg.Address())
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Relay.Force)
		assert.Equal(t, "https://relay.example/api/proxy", cfg.RelayEndpoint())
		assert.Equal(t, []string{"api.internal.example", "llm.example"}, cfg.Relay.AllowedDomains)
		assert.Equal(t, 20*time.Second, cfg.Relay.DefaultTimeout)
		assert.Equal(t, 8, cfg.Batch.Concurrency)
		assert.Equal(t, 0, cfg.Batch.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.Batch.RetryDelay)
		assert.True(t, cfg.Custom.AllowPrivateHosts)
	})

	t.Run("默认密钥被拒绝", func(t *testing.T) {
		resetEnv(t)

		cfg, err := Load()
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "SECURITY ERROR")
	})

	t.Run("过短的密钥被拒绝", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("无效的重试间隔", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", testSecret)
		os.Setenv("KEYGUARD_BATCH_RETRY_DELAY", "soon")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "batch.retry_delay")
	})

	t.Run("不支持的数据库类型", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", testSecret)
		os.Setenv("KEYGUARD_DATABASE_TYPE", "sqlite")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("数据库类型缺少连接串", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("KEYGUARD_AUTH_JOB_TOKEN_SECRET", testSecret)
		os.Setenv("KEYGUARD_DATABASE_TYPE", "postgres")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database.dsn")
	})
}

func TestParseList(t *testing.T) {
	t.Run("去除空白和空项", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, parseList(" a , ,b,"))
	})

	t.Run("空字符串", func(t *testing.T) {
		assert.Empty(t, parseList(""))
	})

	t.Run("域名转小写", func(t *testing.T) {
		assert.Equal(t, []string{"api.example.com"}, parseDomains("API.Example.COM"))
	})
}
