package validator

import (
	"fmt"
	"net/http"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// 验证结果提示
const (
	MsgValid            = "API Key验证成功"
	MsgInvalid          = "无效的API Key"
	MsgRateLimited      = "API Key已达到速率限制"
	MsgFormatError      = "API Key格式不正确"
	MsgUnknown          = "验证过程中出现错误"
	MsgSecretRequired   = "%s需要提供Secret Key"
	MsgUnsupported      = "%s 不支持 %s 格式"
	MsgEndpointRequired = "%s 需要提供自定义端点"
	MsgBadCredentials   = "无效的API Key或Secret Key"
	MsgRequestFailed    = "请求失败"
)

// Classify 按 HTTP 状态码分类，纯函数
//
// 401/403 无效，429 限流，2xx 有效，其余未知。
func Classify(resp *fetch.Response) domain.KeyStatus {
	if resp == nil {
		return domain.StatusUnknown
	}
	switch {
	case resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden:
		return domain.StatusInvalid
	case resp.Status == http.StatusTooManyRequests:
		return domain.StatusRateLimited
	case resp.Status >= 200 && resp.Status < 300:
		return domain.StatusValid
	default:
		return domain.StatusUnknown
	}
}

// classifyResult 根据响应构造基础结果，不含附加信息
func classifyResult(p domain.Provider, format domain.RequestFormat, resp *fetch.Response) *domain.ValidationResult {
	status := Classify(resp)
	result := &domain.ValidationResult{
		IsValid:       status == domain.StatusValid,
		Provider:      p,
		RequestFormat: format,
		Status:        status,
	}
	switch status {
	case domain.StatusValid:
		result.Message = MsgValid
	case domain.StatusInvalid:
		result.Message = MsgInvalid
		result.Error = "API Key authentication failed"
	case domain.StatusRateLimited:
		result.Message = MsgRateLimited
		result.Error = "Rate limit exceeded"
	default:
		result.Message = MsgUnknown
		result.Error = httpError(resp)
	}
	return result
}

func httpError(resp *fetch.Response) string {
	if resp == nil {
		return "no response"
	}
	text := resp.StatusText
	if text == "" {
		text = http.StatusText(resp.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.Status, text)
}

// staticResult 不发请求即可确定的结果
func staticResult(p domain.Provider, format domain.RequestFormat, status domain.KeyStatus, message, errText string) *domain.ValidationResult {
	return &domain.ValidationResult{
		IsValid:       false,
		Provider:      p,
		RequestFormat: format,
		Status:        status,
		Message:       message,
		Error:         errText,
	}
}
