package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 业务状态码定义
const (
	CodeSuccess = 200
	CodeCreated = 201

	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429

	CodeInternalError      = 500
	CodeServiceUnavailable = 503
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "成功",
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: CodeCreated,
		Msg:  msg,
		Data: data,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// NotFound 资源不存在（404）
func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, msg)
}

// Conflict 状态冲突（409）
func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, msg)
}

// TooManyRequests 超出限制（429）
func TooManyRequests(c *gin.Context, msg string) {
	Error(c, http.StatusTooManyRequests, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, msg)
}

// ServiceUnavailable 依赖不可用（503）
func ServiceUnavailable(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Code: CodeServiceUnavailable,
		Msg:  msg,
		Data: data,
	})
}

// Error 通用错误响应（根据HTTP状态码自动选择）
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, Response{
		Code: httpCode,
		Msg:  msg,
	})
}
