package validator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/provider"
)

// GenericStrategy 通用策略：按模板构造请求并按状态码分类
type GenericStrategy struct{}

// Validate 实现 Strategy
func (GenericStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}

	result := classifyResult(cfg.ID, in.Format, resp)
	if result.IsValid {
		result.Details = &domain.ValidationDetails{Models: modelsOr(resp, cfg.Models)}
	}
	return result, nil
}

// send 渲染模板并发送
func send(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*fetch.Response, error) {
	rendered, err := cfg.Render(in.Format, in.vars())
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, &fetch.Request{
		URL:     rendered.URL,
		Method:  rendered.Method,
		Headers: rendered.Headers,
		Body:    rendered.Body,
	})
}

// modelsOr 从响应中提取模型列表，提取不到时使用静态列表
func modelsOr(resp *fetch.Response, fallback []string) []string {
	if models := extractModels(resp); len(models) > 0 {
		return models
	}
	return fallback
}

type modelEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// extractModels 兼容 {"data":[{"id"}]}、{"models":[{"name"}]} 和字符串数组
func extractModels(resp *fetch.Response) []string {
	if resp == nil || len(resp.Data) == 0 {
		return nil
	}
	var body struct {
		Data   json.RawMessage `json:"data"`
		Models json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		return nil
	}
	for _, raw := range []json.RawMessage{body.Data, body.Models} {
		if models := decodeModelList(raw); len(models) > 0 {
			return models
		}
	}
	return nil
}

func decodeModelList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var entries []modelEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		models := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.ID
			if name == "" {
				name = lastSegment(e.Name)
			}
			if name != "" {
				models = append(models, name)
			}
		}
		return models
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names
	}
	return nil
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
