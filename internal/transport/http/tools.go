package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/service"
)

// NetworkHandler 网络状态处理器
type NetworkHandler struct {
	network *service.NetworkService
}

// NewNetworkHandler 创建网络状态处理器
func NewNetworkHandler(network *service.NetworkService) *NetworkHandler {
	return &NetworkHandler{network: network}
}

// GetStatus godoc
// @Summary 出站连通性
// @Description 返回直连与中转的探测结果和当前选用的路径，refresh=true 时强制重新探测
// @Tags Network
// @Produce json
// @Param refresh query bool false "强制重新探测"
// @Success 200 {object} Response
// @Router /v1/network/status [get]
func (h *NetworkHandler) GetStatus(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	Success(c, h.network.Status(c.Request.Context(), refresh))
}

// CustomHandler 自定义请求测试处理器
type CustomHandler struct {
	custom *service.CustomRequestService
	logger *zap.Logger
}

// NewCustomHandler 创建自定义请求测试处理器
func NewCustomHandler(custom *service.CustomRequestService, logger *zap.Logger) *CustomHandler {
	return &CustomHandler{custom: custom, logger: logger}
}

// Execute godoc
// @Summary 执行自定义请求
// @Description 超时和网络错误在 data.error 中返回（data.status 为 0）
// @Tags Custom
// @Accept json
// @Produce json
// @Param request body service.CustomRequest true "请求配置"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/custom/execute [post]
func (h *CustomHandler) Execute(c *gin.Context) {
	var req service.CustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if check := h.custom.ValidateRequest(req); !check.IsValid {
		c.JSON(CodeBadRequest, Response{
			Code: CodeBadRequest,
			Msg:  GetErrorMessage(service.ErrInvalidCustomRequest),
			Data: check,
		})
		return
	}

	resp, err := h.custom.Execute(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, resp)
}

// Validate godoc
// @Summary 校验自定义请求配置
// @Tags Custom
// @Accept json
// @Produce json
// @Param request body service.CustomRequest true "请求配置"
// @Success 200 {object} Response
// @Router /v1/custom/validate [post]
func (h *CustomHandler) Validate(c *gin.Context) {
	var req service.CustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	Success(c, h.custom.ValidateRequest(req))
}

// ListTemplates godoc
// @Summary 内置请求模板
// @Tags Custom
// @Produce json
// @Success 200 {object} Response
// @Router /v1/custom/templates [get]
func (h *CustomHandler) ListTemplates(c *gin.Context) {
	templates := h.custom.Templates()
	Success(c, gin.H{
		"templates": templates,
		"count":     len(templates),
	})
}
