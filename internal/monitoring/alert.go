package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 告警
type Alert struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Level      AlertLevel     `json:"level"`
	Component  string         `json:"component"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AlertRule 告警规则，条件不再满足时自动解除
type AlertRule struct {
	ID        string
	Name      string
	Condition func() bool
	Level     AlertLevel
	Component string
	Message   string
	Cooldown  time.Duration
}

// AlertReceiver 告警接收器接口
type AlertReceiver interface {
	SendAlert(ctx context.Context, alert *Alert) error
}

// AlertManager 告警管理器
type AlertManager struct {
	alerts        map[string]*Alert
	rules         []AlertRule
	lastTriggered map[string]time.Time
	receivers     []AlertReceiver
	logger        *zap.Logger
	now           func() time.Time
	mu            sync.RWMutex
}

// NewAlertManager 创建告警管理器
func NewAlertManager(logger *zap.Logger) *AlertManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		lastTriggered: make(map[string]time.Time),
		logger:        logger,
		now:           time.Now,
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// TriggerAlert 触发告警，同 ID 未解除的告警不会重复发送
func (am *AlertManager) TriggerAlert(ctx context.Context, alert *Alert) {
	am.mu.Lock()
	if existing, exists := am.alerts[alert.ID]; exists && !existing.Resolved {
		am.mu.Unlock()
		am.logger.Debug("Alert already active", zap.String("alert_id", alert.ID))
		return
	}
	am.alerts[alert.ID] = alert
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	for _, receiver := range receivers {
		if err := receiver.SendAlert(ctx, alert); err != nil {
			am.logger.Error("Failed to send alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	am.logger.Info("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("component", alert.Component),
	)
}

// ResolveAlert 解除告警
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.alerts[alertID]; exists && !alert.Resolved {
		now := am.now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.Info("Alert resolved", zap.String("alert_id", alertID))
	}
}

// GetAlerts 获取告警列表，按时间倒序
func (am *AlertManager) GetAlerts() []Alert {
	return am.collect(func(*Alert) bool { return true })
}

// GetActiveAlerts 获取未解除的告警
func (am *AlertManager) GetActiveAlerts() []Alert {
	return am.collect(func(a *Alert) bool { return !a.Resolved })
}

func (am *AlertManager) collect(keep func(*Alert) bool) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.alerts))
	for _, alert := range am.alerts {
		if keep(alert) {
			alerts = append(alerts, *alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts
}

// CheckRules 检查告警规则
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Condition() {
			am.ResolveAlert(rule.ID)
			continue
		}

		now := am.now()
		am.mu.Lock()
		last := am.lastTriggered[rule.ID]
		if !last.IsZero() && now.Sub(last) < rule.Cooldown {
			am.mu.Unlock()
			continue
		}
		am.lastTriggered[rule.ID] = now
		am.mu.Unlock()

		am.TriggerAlert(ctx, &Alert{
			ID:        rule.ID,
			Title:     rule.Name,
			Message:   rule.Message,
			Level:     rule.Level,
			Component: rule.Component,
			Timestamp: now,
		})
	}
}

// StartMonitoring 启动监控
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules(ctx)
		}
	}
}

// ========== 内置告警规则 ==========

// ConnectivityRule 直连和中转都不可达时告警
func ConnectivityRule(state func() fetch.ProbeState) AlertRule {
	return AlertRule{
		ID:   "connectivity_lost",
		Name: "Outbound Connectivity Lost",
		Condition: func() bool {
			return state() == fetch.ProbeNeither
		},
		Level:     AlertLevelCritical,
		Component: "network",
		Message:   "Neither the direct path nor the relay can reach provider APIs",
		Cooldown:  5 * time.Minute,
	}
}

// HighOutboundErrorRateRule 两次检查之间出站请求失败率超过阈值时告警
func HighOutboundErrorRateRule(m *Metrics, threshold float64, minSamples int64) AlertRule {
	var (
		mu                   sync.Mutex
		lastTotal, lastFails int64
	)
	return AlertRule{
		ID:   "high_outbound_error_rate",
		Name: "High Outbound Error Rate",
		Condition: func() bool {
			total, failed := m.OutboundCounts()

			mu.Lock()
			dt, df := total-lastTotal, failed-lastFails
			lastTotal, lastFails = total, failed
			mu.Unlock()

			if dt < minSamples || dt == 0 {
				return false
			}
			return float64(df)/float64(dt)*100 > threshold
		},
		Level:     AlertLevelWarning,
		Component: "fetch",
		Message:   fmt.Sprintf("Outbound error rate exceeds %.1f%%", threshold),
		Cooldown:  5 * time.Minute,
	}
}

// StoreUnavailableRule 任务存储不可用时告警
func StoreUnavailableRule(ping func(ctx context.Context) error) AlertRule {
	return AlertRule{
		ID:   "job_store_unavailable",
		Name: "Job Store Unavailable",
		Condition: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ping(ctx) != nil
		},
		Level:     AlertLevelCritical,
		Component: "storage",
		Message:   "Job store connection failed",
		Cooldown:  time.Minute,
	}
}

// HighMemoryUsageRule 高内存使用告警规则
func HighMemoryUsageRule(thresholdMB float64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func() bool {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return float64(m.Alloc)/1024/1024 > thresholdMB
		},
		Level:     AlertLevelWarning,
		Component: "memory",
		Message:   fmt.Sprintf("Memory usage exceeds %.0f MB", thresholdMB),
		Cooldown:  5 * time.Minute,
	}
}

// ========== 告警接收器实现 ==========

// LogAlertReceiver 日志告警接收器
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert 发送告警到日志
func (lar *LogAlertReceiver) SendAlert(_ context.Context, alert *Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("component", alert.Component),
		zap.Time("timestamp", alert.Timestamp),
	}
	switch alert.Level {
	case AlertLevelCritical:
		lar.logger.Error("CRITICAL ALERT", fields...)
	case AlertLevelWarning:
		lar.logger.Warn("WARNING ALERT", fields...)
	default:
		lar.logger.Info("INFO ALERT", fields...)
	}
	return nil
}

// WebhookAlertReceiver Webhook 告警接收器
type WebhookAlertReceiver struct {
	url    string
	sender fetch.Sender
	logger *zap.Logger
}

// NewWebhookAlertReceiver 创建 Webhook 告警接收器
func NewWebhookAlertReceiver(url string, sender fetch.Sender, logger *zap.Logger) *WebhookAlertReceiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookAlertReceiver{url: url, sender: sender, logger: logger}
}

// SendAlert 以 JSON POST 发送告警
func (war *WebhookAlertReceiver) SendAlert(ctx context.Context, alert *Alert) error {
	resp, err := war.sender.Send(ctx, &fetch.Request{
		URL:     war.url,
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    alert,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("webhook alert: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("webhook alert: unexpected status %d", resp.Status)
	}

	war.logger.Debug("Alert sent to webhook",
		zap.String("alert_id", alert.ID),
		zap.Int("status", resp.Status),
	)
	return nil
}
