package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/width"
)

const (
	// MinPlausibleKeyLength 低于该长度的密钥视为格式可疑
	MinPlausibleKeyLength = 10
	// PreviewSize 批量输入预览条数
	PreviewSize = 5
)

// 批量输入校验提示
const (
	MsgInputEmpty     = "输入不能为空"
	MsgNothingParsed  = "未能解析出任何有效的API Key"
	MsgDuplicateKeys  = "发现重复的API Key: %d个"
	MsgSuspiciousKeys = "发现格式可能有误的API Key: %d个"
)

// BatchInputReport 批量输入校验结果
type BatchInputReport struct {
	IsValid bool       `json:"isValid"`
	Errors  []string   `json:"errors"`
	Total   int        `json:"total"`
	Preview []WorkItem `json:"preview"`
}

type jsonInputItem struct {
	Service   string `json:"service"`
	Provider  string `json:"provider"`
	Key       string `json:"key"`
	APIKey    string `json:"apiKey"`
	CustomURL string `json:"customUrl"`
	SecretKey string `json:"secretKey"`
}

// ParseBatchInput 解析批量输入文本
//
// 支持三种形式：JSON 数组、每行 "service:key[:url]"、每行一个裸密钥（默认 openai）。
// 全角字符会先折叠为半角。
func ParseBatchInput(text string) []WorkItem {
	text = strings.TrimSpace(width.Fold.String(text))
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "[") {
		if items, ok := parseJSONInput(text); ok {
			return items
		}
	}

	var items []WorkItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, parseLine(line))
	}
	return items
}

func parseJSONInput(text string) ([]WorkItem, bool) {
	var raw []jsonInputItem
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	items := make([]WorkItem, 0, len(raw))
	for _, r := range raw {
		key := firstNonEmpty(r.Key, r.APIKey)
		if strings.TrimSpace(key) == "" {
			continue
		}
		item := NewWorkItem(ParseProvider(firstNonEmpty(r.Service, r.Provider)), key)
		item.CustomEndpoint = strings.TrimSpace(r.CustomURL)
		item.SecretKey = strings.TrimSpace(r.SecretKey)
		items = append(items, item)
	}
	return items, true
}

func parseLine(line string) WorkItem {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return NewWorkItem(ProviderOpenAI, line)
	}

	provider := ParseProvider(parts[0])
	if provider == ProviderCustom && len(parts) >= 3 {
		// custom:key:https://host/path，URL 本身含冒号
		item := NewWorkItem(provider, parts[1])
		item.CustomEndpoint = strings.TrimSpace(strings.Join(parts[2:], ":"))
		return item
	}
	return NewWorkItem(provider, strings.Join(parts[1:], ":"))
}

// ValidateBatchInput 校验批量输入并给出预览
func ValidateBatchInput(text string) BatchInputReport {
	report := BatchInputReport{Errors: []string{}, Preview: []WorkItem{}}

	if strings.TrimSpace(text) == "" {
		report.Errors = append(report.Errors, MsgInputEmpty)
		return report
	}

	items := ParseBatchInput(text)
	report.Total = len(items)
	if len(items) == 0 {
		report.Errors = append(report.Errors, MsgNothingParsed)
		return report
	}

	seen := make(map[string]bool, len(items))
	duplicates, suspicious := 0, 0
	for _, item := range items {
		if seen[item.Fingerprint] {
			duplicates++
		}
		seen[item.Fingerprint] = true
		if len(item.Key) < MinPlausibleKeyLength {
			suspicious++
		}
	}
	if duplicates > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf(MsgDuplicateKeys, duplicates))
	}
	if suspicious > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf(MsgSuspiciousKeys, suspicious))
	}

	n := len(items)
	if n > PreviewSize {
		n = PreviewSize
	}
	report.Preview = items[:n]
	report.IsValid = len(report.Errors) == 0
	return report
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
