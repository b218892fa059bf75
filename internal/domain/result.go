package domain

// RateLimit 服务商返回的速率限制信息
type RateLimit struct {
	Requests  int    `json:"requests"`
	Tokens    int    `json:"tokens"`
	ResetTime string `json:"resetTime"`
}

// ValidationDetails 验证成功后的附加信息（尽力获取，缺失不影响结果）
type ValidationDetails struct {
	Models       []string       `json:"models,omitempty"`
	Balance      *float64       `json:"balance,omitempty"`
	Organization string         `json:"organization,omitempty"`
	RateLimit    *RateLimit     `json:"rateLimit,omitempty"`
	AccountInfo  map[string]any `json:"accountInfo,omitempty"`
	Usage        map[string]any `json:"usage,omitempty"`
}

// ValidationResult 单次验证结果，构造后不再修改
type ValidationResult struct {
	IsValid        bool               `json:"isValid"`
	Provider       Provider           `json:"provider"`
	RequestFormat  RequestFormat      `json:"requestFormat,omitempty"`
	Status         KeyStatus          `json:"status"`
	Message        string             `json:"message"`
	ResponseTimeMs int64              `json:"responseTime,omitempty"`
	Details        *ValidationDetails `json:"details,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// WithResponseTime 返回带响应时间的副本
func (r *ValidationResult) WithResponseTime(ms int64) *ValidationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.ResponseTimeMs = ms
	return &out
}

// NewErrorResult 构造错误状态的验证结果
func NewErrorResult(provider Provider, format RequestFormat, message string, err error) *ValidationResult {
	result := &ValidationResult{
		IsValid:       false,
		Provider:      provider,
		RequestFormat: format,
		Status:        StatusError,
		Message:       message,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
