package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/service"
)

// KeyHandler 单个密钥验证处理器
type KeyHandler struct {
	keys   *service.KeyService
	logger *zap.Logger
}

// NewKeyHandler 创建单个密钥验证处理器
func NewKeyHandler(keys *service.KeyService, logger *zap.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: logger}
}

type validateKeyRequest struct {
	Key            string `json:"key"`
	SecretKey      string `json:"secretKey"`
	Provider       string `json:"provider"`
	RequestFormat  string `json:"requestFormat"`
	CheckBalance   bool   `json:"checkBalance"`
	CustomEndpoint string `json:"customEndpoint"`
}

// ListProviders godoc
// @Summary 服务商列表
// @Description 返回支持的服务商、密钥示例和可用请求格式
// @Tags Keys
// @Produce json
// @Success 200 {object} Response
// @Router /v1/providers [get]
func (h *KeyHandler) ListProviders(c *gin.Context) {
	providers := h.keys.Providers()
	Success(c, gin.H{
		"providers": providers,
		"count":     len(providers),
	})
}

// ValidateKey godoc
// @Summary 验证单个API Key
// @Description 验证失败也返回 200，结果状态见 data.status
// @Tags Keys
// @Accept json
// @Produce json
// @Param request body validateKeyRequest true "验证参数"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/keys/validate [post]
func (h *KeyHandler) ValidateKey(c *gin.Context) {
	var req validateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	in := &service.ValidateKeyInput{
		Key:            req.Key,
		SecretKey:      req.SecretKey,
		Provider:       req.Provider,
		RequestFormat:  req.RequestFormat,
		CheckBalance:   req.CheckBalance,
		CustomEndpoint: req.CustomEndpoint,
	}
	req.Key, req.SecretKey = "", ""

	result, err := h.keys.Validate(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, result)
}
