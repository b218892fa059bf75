package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/relay"
)

// RelayRecorder 记录中转结果
type RelayRecorder interface {
	RecordRelay(outcome string)
}

// RelayHandler 同源中转端点
//
// 响应体是中转协议本身，不使用统一响应结构：
// 成功为上游响应 {status, statusText, headers, data, ok}，失败为 {error, details}。
type RelayHandler struct {
	forwarder *relay.Forwarder
	recorder  RelayRecorder
	logger    *zap.Logger
}

// NewRelayHandler 创建中转处理器，recorder 可为 nil
func NewRelayHandler(forwarder *relay.Forwarder, recorder RelayRecorder, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{forwarder: forwarder, recorder: recorder, logger: logger}
}

const (
	msgRelayBadRequest = "无效的代理请求"
	msgRelayRateLimit  = "代理请求过于频繁"
)

// Proxy godoc
// @Summary 中转请求
// @Description 将请求转发到白名单内的AI服务商，上游非 2xx 也以 200 返回
// @Tags Relay
// @Accept json
// @Produce json
// @Param request body relay.Request true "中转请求"
// @Success 200 {object} fetch.Response
// @Failure 400 {object} fetch.RelayError
// @Failure 403 {object} fetch.RelayError
// @Failure 408 {object} fetch.RelayError
// @Failure 500 {object} fetch.RelayError
// @Router /api/proxy [post]
func (h *RelayHandler) Proxy(c *gin.Context) {
	var req relay.Request
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		h.record(relay.OutcomeRejected)
		c.JSON(http.StatusBadRequest, fetch.RelayError{Error: msgRelayBadRequest})
		return
	}

	resp, err := h.forwarder.Forward(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidURL) {
			h.record(relay.OutcomeRejected)
			c.JSON(http.StatusBadRequest, fetch.RelayError{Error: msgRelayBadRequest})
			return
		}
		status, outcome, body := relay.ErrorResponse(err)
		h.record(outcome)
		c.JSON(status, body)
		return
	}

	h.record(relay.OutcomeOK)
	c.JSON(http.StatusOK, resp)
}

// RejectRateLimited 中转端点的限流响应，保持中转协议格式
func (h *RelayHandler) RejectRateLimited(c *gin.Context, _ time.Duration) {
	h.record(relay.OutcomeRejected)
	c.JSON(http.StatusTooManyRequests, fetch.RelayError{Error: msgRelayRateLimit})
}

func (h *RelayHandler) record(outcome relay.Outcome) {
	if h.recorder != nil {
		h.recorder.RecordRelay(string(outcome))
	}
}
