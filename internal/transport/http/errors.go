package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 单个验证
	service.ErrKeyRequired:     "API Key不能为空",
	service.ErrInvalidFormat:   "无效的请求格式",
	service.ErrUnknownProvider: "不支持的服务商",

	// 批量任务
	service.ErrInvalidBatchConfig: "批量任务参数超出范围",
	domain.ErrEmptyBatch:          "没有可检测的API Key",
	domain.ErrTooManyItems:        "API Key数量超过上限",
	domain.ErrTooManyJobs:         "进行中的任务过多，请稍后再试",
	domain.ErrJobNotFound:         "任务不存在",
	domain.ErrJobNotActive:        "任务当前状态不允许该操作",

	// 自定义请求
	service.ErrInvalidCustomRequest: "请求配置无效",
}

// 错误对应的 HTTP 状态码，未列出的按 500 处理
var errorStatus = map[error]int{
	service.ErrKeyRequired:          http.StatusBadRequest,
	service.ErrInvalidFormat:        http.StatusBadRequest,
	service.ErrUnknownProvider:      http.StatusBadRequest,
	service.ErrInvalidBatchConfig:   http.StatusBadRequest,
	service.ErrInvalidCustomRequest: http.StatusBadRequest,
	domain.ErrEmptyBatch:            http.StatusBadRequest,
	domain.ErrTooManyItems:          http.StatusBadRequest,
	domain.ErrTooManyJobs:           http.StatusTooManyRequests,
	domain.ErrJobNotFound:           http.StatusNotFound,
	domain.ErrJobNotActive:          http.StatusConflict,
}

// GetErrorMessage 获取错误的中文消息，支持包装过的错误
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// statusOf 业务错误对应的 HTTP 状态码
func statusOf(err error) int {
	for target, status := range errorStatus {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgRateLimited    = "请求过于频繁，请稍后再试"

	// 批量任务
	MsgBatchCreated = "批量任务已创建"
	MsgJobPaused    = "任务已暂停"
	MsgJobResumed   = "任务已恢复"
	MsgJobStopped   = "任务已停止"

	// 系统
	MsgServiceUnhealthy = "服务不可用"
	MsgInternalError    = "服务器内部错误，请稍后重试"
)

// respondError 按错误类型写出统一响应，5xx 不暴露内部错误
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		InternalError(c, MsgInternalError)
		return
	}
	Error(c, status, GetErrorMessage(err))
}
