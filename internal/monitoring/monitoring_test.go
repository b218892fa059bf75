package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	t.Run("出站请求按结果分类", func(t *testing.T) {
		m.ObserveOutbound("direct", 200, nil, 10*time.Millisecond)
		m.ObserveOutbound("direct", 401, nil, 10*time.Millisecond)
		m.ObserveOutbound("direct", 0, &fetch.TimeoutError{}, time.Second)
		m.ObserveOutbound("relay", 0, errors.New("boom"), time.Second)

		body := scrape(t, m)
		assert.Contains(t, body, `keyguard_outbound_requests_total{path="direct",result="2xx"} 1`)
		assert.Contains(t, body, `keyguard_outbound_requests_total{path="direct",result="4xx"} 1`)
		assert.Contains(t, body, `keyguard_outbound_requests_total{path="direct",result="timeout"} 1`)
		assert.Contains(t, body, `keyguard_outbound_requests_total{path="relay",result="error"} 1`)

		total, failed := m.OutboundCounts()
		assert.Equal(t, int64(4), total)
		assert.Equal(t, int64(2), failed)
	})

	t.Run("任务生命周期", func(t *testing.T) {
		m.JobStarted()
		assert.Contains(t, scrape(t, m), "keyguard_batch_jobs_active 1")

		item := domain.WorkItem{Provider: domain.ProviderOpenAI, Status: domain.StatusValid,
			Result: &domain.ValidationResult{Status: domain.StatusValid}}
		m.ItemFinished(item)
		m.JobFinished(domain.JobCompleted, 2*time.Second)

		body := scrape(t, m)
		assert.Contains(t, body, `keyguard_batch_items_total{status="valid"} 1`)
		assert.Contains(t, body, `keyguard_validations_total{provider="openai",status="valid"} 1`)
		assert.Contains(t, body, "keyguard_batch_jobs_active 0")
		assert.Contains(t, body, `keyguard_batch_jobs_finished_total{state="completed"} 1`)
	})

	t.Run("连通性与中转指标", func(t *testing.T) {
		m.UpdateConnectivity(fetch.Connectivity{Direct: false, Relay: true})
		m.RecordRelay("rejected")

		body := scrape(t, m)
		assert.Contains(t, body, `keyguard_connectivity_up{path="direct"} 0`)
		assert.Contains(t, body, `keyguard_connectivity_up{path="relay"} 1`)
		assert.Contains(t, body, `keyguard_relay_requests_total{outcome="rejected"} 1`)
		assert.True(t, strings.Contains(body, "keyguard_system_uptime_seconds"))
	})
}

type recordingReceiver struct {
	mu     sync.Mutex
	alerts []*Alert
}

func (r *recordingReceiver) SendAlert(_ context.Context, alert *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestAlertManager(t *testing.T) {
	t.Run("条件满足触发，恢复后解除", func(t *testing.T) {
		state := fetch.ProbeNeither
		am := NewAlertManager(nil)
		receiver := &recordingReceiver{}
		am.AddReceiver(receiver)
		am.AddRule(ConnectivityRule(func() fetch.ProbeState { return state }))

		am.CheckRules(context.Background())
		require.Len(t, am.GetActiveAlerts(), 1)
		assert.Equal(t, "connectivity_lost", am.GetActiveAlerts()[0].ID)

		// 冷却期内不会重复发送
		am.CheckRules(context.Background())
		assert.Equal(t, 1, receiver.count())

		state = fetch.ProbeBoth
		am.CheckRules(context.Background())
		assert.Empty(t, am.GetActiveAlerts())
		require.Len(t, am.GetAlerts(), 1)
		assert.True(t, am.GetAlerts()[0].Resolved)
	})

	t.Run("出站失败率按区间计算", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		rule := HighOutboundErrorRateRule(m, 50, 4)

		assert.False(t, rule.Condition(), "没有样本")

		for i := 0; i < 4; i++ {
			m.ObserveOutbound("direct", 0, errors.New("down"), time.Millisecond)
		}
		assert.True(t, rule.Condition())

		for i := 0; i < 4; i++ {
			m.ObserveOutbound("direct", 200, nil, time.Millisecond)
		}
		assert.False(t, rule.Condition(), "新区间全部成功")
	})

	t.Run("存储不可用", func(t *testing.T) {
		rule := StoreUnavailableRule(func(context.Context) error { return errors.New("down") })
		assert.True(t, rule.Condition())
	})

	t.Run("Webhook 接收器发送 JSON", func(t *testing.T) {
		var got *fetch.Request
		sender := fetch.SenderFunc(func(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
			got = req
			return fetch.NewResponse(http.StatusNoContent, nil, nil), nil
		})
		receiver := NewWebhookAlertReceiver("https://hooks.example.com/alert", sender, nil)

		err := receiver.SendAlert(context.Background(), &Alert{ID: "x"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, http.MethodPost, got.Method)
		assert.Equal(t, "https://hooks.example.com/alert", got.URL)
	})
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker(nil, "1.0.0", "test")
	hc.AddCheck("memory", MemoryCheck(1<<20))
	hc.AddCheck("connectivity", ConnectivityCheck(func() fetch.ProbeState { return fetch.ProbeNeither }))

	report := hc.CheckHealth(context.Background())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, HealthStatusDegraded, report.Status)

	hc.AddCheck("store", PingCheck(func(context.Context) error { return errors.New("down") }, HealthStatusUnhealthy))
	report = hc.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks[2].Message, "down")
	assert.False(t, hc.IsHealthy(context.Background()))
}
