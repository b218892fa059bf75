package httptransport

import (
	"github.com/gin-gonic/gin"

	"github.com/chatUnique/keyguard-pro/internal/monitoring"
)

// SystemHandler 健康报告与告警
type SystemHandler struct {
	status *monitoring.HealthChecker
	alerts *monitoring.AlertManager
}

// NewSystemHandler 创建系统处理器，两个参数都可为 nil
func NewSystemHandler(status *monitoring.HealthChecker, alerts *monitoring.AlertManager) *SystemHandler {
	return &SystemHandler{status: status, alerts: alerts}
}

// Health godoc
// @Summary 健康报告
// @Description 汇总各项检查；存在不健康项时返回 503
// @Tags System
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	if h.status == nil {
		Success(c, gin.H{"status": monitoring.HealthStatusHealthy})
		return
	}

	report := h.status.CheckHealth(c.Request.Context())
	if report.Status == monitoring.HealthStatusUnhealthy {
		ServiceUnavailable(c, MsgServiceUnhealthy, report)
		return
	}
	Success(c, report)
}

// ListAlerts godoc
// @Summary 告警列表
// @Description 默认只返回未解除的告警，all=true 时返回全部
// @Tags System
// @Produce json
// @Param all query bool false "包含已解除的告警"
// @Success 200 {object} Response
// @Router /v1/alerts [get]
func (h *SystemHandler) ListAlerts(c *gin.Context) {
	alerts := []monitoring.Alert{}
	if h.alerts != nil {
		if c.Query("all") == "true" {
			alerts = h.alerts.GetAlerts()
		} else {
			alerts = h.alerts.GetActiveAlerts()
		}
	}
	Success(c, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
