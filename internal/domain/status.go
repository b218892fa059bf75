package domain

// KeyStatus API Key 检测状态
type KeyStatus string

const (
	StatusPending       KeyStatus = "pending"        // 待检测
	StatusChecking      KeyStatus = "checking"       // 检测中
	StatusValid         KeyStatus = "valid"          // 有效
	StatusInvalid       KeyStatus = "invalid"        // 无效
	StatusExpired       KeyStatus = "expired"        // 已过期
	StatusQuotaExceeded KeyStatus = "quota_exceeded" // 配额超限
	StatusRateLimited   KeyStatus = "rate_limited"   // 频率限制
	StatusFormatError   KeyStatus = "format_error"   // 格式错误
	StatusError         KeyStatus = "error"          // 错误
	StatusUnknown       KeyStatus = "unknown"        // 未知
)

var statusLabels = map[KeyStatus]string{
	StatusPending:       "待检测",
	StatusChecking:      "检测中",
	StatusValid:         "有效",
	StatusInvalid:       "无效",
	StatusExpired:       "已过期",
	StatusQuotaExceeded: "配额超限",
	StatusRateLimited:   "频率限制",
	StatusFormatError:   "格式错误",
	StatusError:         "错误",
	StatusUnknown:       "未知",
}

// IsTerminal 是否为终态（同一次运行中不会再变化）
func (s KeyStatus) IsTerminal() bool {
	switch s {
	case StatusPending, StatusChecking, "":
		return false
	}
	return true
}

// Label 中文描述
func (s KeyStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}
