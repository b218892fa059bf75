package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/auth"
	"github.com/chatUnique/keyguard-pro/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIPRateLimiter(t *testing.T) {
	t.Run("突发容量用完后拒绝", func(t *testing.T) {
		limiter := NewIPRateLimiter(1, 2, time.Minute, nil)

		ok, _ := limiter.Reserve("10.0.0.1")
		assert.True(t, ok)
		ok, _ = limiter.Reserve("10.0.0.1")
		assert.True(t, ok)
		ok, wait := limiter.Reserve("10.0.0.1")
		assert.False(t, ok)
		assert.Greater(t, wait, time.Duration(0))

		// 不同客户端互不影响
		ok, _ = limiter.Reserve("10.0.0.2")
		assert.True(t, ok)
	})

	t.Run("中间件返回 429 和 Retry-After", func(t *testing.T) {
		limiter := NewIPRateLimiter(0.5, 1, time.Minute, nil)
		r := gin.New()
		r.GET("/x", limiter.Middleware(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", "", nil).Code)
		rec := perform(r, http.MethodGet, "/x", "", nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("自定义拒绝响应", func(t *testing.T) {
		limiter := NewIPRateLimiter(0.5, 1, time.Minute, nil)
		r := gin.New()
		r.POST("/api/proxy", limiter.Middleware(func(c *gin.Context, _ time.Duration) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
		}), func(c *gin.Context) { c.Status(http.StatusOK) })

		perform(r, http.MethodPost, "/api/proxy", "", nil)
		rec := perform(r, http.MethodPost, "/api/proxy", "", nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"error":"slow down"}`, rec.Body.String())
	})
}

func TestIPRateLimiter_LocalDirect(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 1, time.Minute, nil).WithExemption(LocalDirect)
	r := gin.New()
	r.POST("/api/proxy", limiter.Middleware(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(remote string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/proxy", nil)
		req.RemoteAddr = remote
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("本机同源中转不受限", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			require.Equal(t, http.StatusOK, send("127.0.0.1:40000", nil))
		}
	})

	t.Run("经反向代理的本机请求仍然限流", func(t *testing.T) {
		headers := map[string]string{"X-Forwarded-For": "203.0.113.9"}
		assert.Equal(t, http.StatusOK, send("127.0.0.1:40001", headers))
		assert.Equal(t, http.StatusTooManyRequests, send("127.0.0.1:40001", headers))
	})

	t.Run("外部客户端仍然限流", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send("198.51.100.7:5000", nil))
		assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.7:5000", nil))
	})
}

func TestJobAuth(t *testing.T) {
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", "keyguard-pro", time.Hour)
	token, _, err := tokens.Issue("job-1")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/v1/batches/:id", NewJobAuth(tokens, nil).RequireJobToken(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextJobID))
	})

	t.Run("Bearer 令牌", func(t *testing.T) {
		rec := perform(r, http.MethodGet, "/v1/batches/job-1", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "job-1", rec.Body.String())
	})

	t.Run("查询参数令牌", func(t *testing.T) {
		rec := perform(r, http.MethodGet, "/v1/batches/job-1?token="+token, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("缺少令牌", func(t *testing.T) {
		rec := perform(r, http.MethodGet, "/v1/batches/job-1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("令牌属于其他任务", func(t *testing.T) {
		rec := perform(r, http.MethodGet, "/v1/batches/job-2", "", map[string]string{"X-Job-Token": token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(8))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/x", "small", nil).Code)
	rec := perform(r, http.MethodPost, "/x", "this body is too large", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":413`)
}

func TestValidateContentType(t *testing.T) {
	r := gin.New()
	r.Use(ValidateContentType("application/json"))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK,
		perform(r, http.MethodPost, "/x", "{}", map[string]string{"Content-Type": "application/json; charset=utf-8"}).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType,
		perform(r, http.MethodPost, "/x", "a=b", map[string]string{"Content-Type": "application/x-www-form-urlencoded"}).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/x", "", nil).Code, "空请求体放行")
}

func TestMonitoringMiddleware(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	mm := NewMonitoringMiddleware(metrics, nil)

	r := gin.New()
	r.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ok", "", nil).Code)
	rec := perform(r, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	scrape := httptest.NewRecorder()
	metrics.HTTPHandler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `keyguard_http_requests_total{endpoint="/ok",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, "keyguard_panics_total 1")
}
