package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// WorkItem 批量检测中的单个 API Key 条目
type WorkItem struct {
	ID             string            `json:"id"`
	Provider       Provider          `json:"provider"`
	Key            string            `json:"-"` // 原始密钥，不序列化，终态后清空
	SecretKey      string            `json:"-"` // 百度等服务商的 Secret Key
	MaskedKey      string            `json:"maskedKey"`
	Fingerprint    string            `json:"fingerprint"`
	Status         KeyStatus         `json:"status"`
	RetryCount     int               `json:"retryCount"`
	Result         *ValidationResult `json:"result,omitempty"`
	CheckTimeMs    int64             `json:"checkTime,omitempty"`
	CustomEndpoint string            `json:"customUrl,omitempty"`
	RequestFormat  RequestFormat     `json:"requestFormat,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// NewWorkItem 创建待检测条目
func NewWorkItem(provider Provider, key string) WorkItem {
	key = strings.TrimSpace(key)
	return WorkItem{
		ID:          uuid.NewString(),
		Provider:    provider,
		Key:         key,
		MaskedKey:   MaskKey(key),
		Fingerprint: Fingerprint(key),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Redact 清除条目中保存的密钥
func (w *WorkItem) Redact() {
	w.Key = ""
	w.SecretKey = ""
}

// MaskKey 遮蔽密钥，保留前后各 4 位
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Fingerprint 计算密钥指纹，用于去重和日志关联
func Fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
