package monitoring

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// Metrics 监控指标
type Metrics struct {
	gatherer prometheus.Gatherer
	started  time.Time

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 出站请求指标
	OutboundRequestsTotal   *prometheus.CounterVec
	OutboundRequestDuration *prometheus.HistogramVec

	// 中转指标
	RelayRequestsTotal *prometheus.CounterVec

	// 验证指标
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec

	// 批量任务指标
	JobsStarted     prometheus.Counter
	JobsActive      prometheus.Gauge
	JobsFinished    *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	BatchItemsTotal *prometheus.CounterVec

	// 连通性
	ConnectivityUp *prometheus.GaugeVec

	// WebSocket
	WebSocketClients prometheus.Gauge

	// 错误与限流
	ErrorsTotal     *prometheus.CounterVec
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec

	SystemUptime prometheus.GaugeFunc

	// 告警规则使用的累计值
	outboundTotal  atomic.Int64
	outboundFailed atomic.Int64
}

// NewMetrics 在给定注册表上创建监控指标，reg 为 nil 时使用默认注册表
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	m := &Metrics{
		gatherer: gatherer,
		started:  time.Now(),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		OutboundRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_outbound_requests_total",
				Help: "Total number of outbound provider requests by path and result",
			},
			[]string{"path", "result"},
		),

		OutboundRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_outbound_request_duration_seconds",
				Help:    "Outbound provider request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"path"},
		),

		RelayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_relay_requests_total",
				Help: "Total number of relay requests by outcome",
			},
			[]string{"outcome"},
		),

		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_validations_total",
				Help: "Total number of key validations by provider and status",
			},
			[]string{"provider", "status"},
		),

		ValidationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_validation_duration_seconds",
				Help:    "Key validation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		JobsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keyguard_batch_jobs_started_total",
				Help: "Total number of batch jobs started",
			},
		),

		JobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyguard_batch_jobs_active",
				Help: "Number of batch jobs currently running",
			},
		),

		JobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_batch_jobs_finished_total",
				Help: "Total number of batch jobs finished by final state",
			},
			[]string{"state"},
		),

		JobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keyguard_batch_job_duration_seconds",
				Help:    "Batch job wall time in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		BatchItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_batch_items_total",
				Help: "Total number of batch items finished by status",
			},
			[]string{"status"},
		),

		ConnectivityUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyguard_connectivity_up",
				Help: "Whether the outbound path was reachable at the last probe",
			},
			[]string{"path"},
		),

		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyguard_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keyguard_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_rate_limit_blocks_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"type"},
		),
	}

	m.SystemUptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "keyguard_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
		func() float64 { return time.Since(m.started).Seconds() },
	)

	return m
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if responseSize >= 0 {
		m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
	}
}

// ObserveOutbound 实现 fetch.Observer
func (m *Metrics) ObserveOutbound(path string, status int, err error, elapsed time.Duration) {
	m.OutboundRequestsTotal.WithLabelValues(path, outboundResult(status, err)).Inc()
	m.OutboundRequestDuration.WithLabelValues(path).Observe(elapsed.Seconds())

	m.outboundTotal.Add(1)
	if err != nil {
		m.outboundFailed.Add(1)
	}
}

func outboundResult(status int, err error) string {
	var te *fetch.TimeoutError
	switch {
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, fetch.ErrRelayRejected):
		return "relay_rejected"
	case err != nil:
		return "error"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return strconv.Itoa(status/100) + "xx"
	}
}

// OutboundCounts 返回累计出站请求数和失败数
func (m *Metrics) OutboundCounts() (total, failed int64) {
	return m.outboundTotal.Load(), m.outboundFailed.Load()
}

// RecordRelay 记录中转结果
func (m *Metrics) RecordRelay(outcome string) {
	m.RelayRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordValidation 记录单次验证
func (m *Metrics) RecordValidation(provider domain.Provider, status domain.KeyStatus, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(string(provider), string(status)).Inc()
	m.ValidationDuration.WithLabelValues(string(provider)).Observe(duration.Seconds())
}

// JobStarted 实现 batch.Observer
func (m *Metrics) JobStarted() {
	m.JobsStarted.Inc()
	m.JobsActive.Inc()
}

// JobFinished 实现 batch.Observer
func (m *Metrics) JobFinished(state domain.JobState, elapsed time.Duration) {
	m.JobsActive.Dec()
	m.JobsFinished.WithLabelValues(string(state)).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

// ItemFinished 实现 batch.Observer
func (m *Metrics) ItemFinished(item domain.WorkItem) {
	m.BatchItemsTotal.WithLabelValues(string(item.Status)).Inc()
	if item.Result != nil {
		m.ValidationsTotal.WithLabelValues(string(item.Provider), string(item.Result.Status)).Inc()
	}
}

// UpdateConnectivity 更新连通性指标
func (m *Metrics) UpdateConnectivity(c fetch.Connectivity) {
	m.ConnectivityUp.WithLabelValues(string(fetch.PathDirect)).Set(boolGauge(c.Direct))
	m.ConnectivityUp.WithLabelValues(string(fetch.PathRelay)).Set(boolGauge(c.Relay))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// UpdateWebSocketClients 更新 WebSocket 连接数
func (m *Metrics) UpdateWebSocketClients(count int) {
	m.WebSocketClients.Set(float64(count))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
