package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/provider"
)

var errNoBalance = errors.New("balance not available")

// builtinStrategies 有专门逻辑的服务商，其余走通用策略
func builtinStrategies() map[domain.Provider]Strategy {
	return map[domain.Provider]Strategy{
		domain.ProviderOpenAI:      OpenAIStrategy{},
		domain.ProviderAnthropic:   StaticModelsStrategy{},
		domain.ProviderGoogle:      GoogleStrategy{},
		domain.ProviderBaidu:       BaiduStrategy{},
		domain.ProviderQwen:        StaticModelsStrategy{},
		domain.ProviderHuggingFace: HuggingFaceStrategy{},
		domain.ProviderSiliconFlow: SiliconFlowStrategy{},
	}
}

// OpenAIStrategy 提取模型、组织和速率限制头，支持余额查询
type OpenAIStrategy struct{}

const openAIBillingURL = "https://api.openai.com/v1/dashboard/billing/subscription"

// Validate 实现 Strategy
func (OpenAIStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}

	result := classifyResult(cfg.ID, in.Format, resp)
	if !result.IsValid {
		return result, nil
	}

	details := &domain.ValidationDetails{
		Models:       extractModels(resp),
		Organization: resp.Header("openai-organization"),
		RateLimit: &domain.RateLimit{
			Requests:  atoi(resp.Header("x-ratelimit-limit-requests")),
			Tokens:    atoi(resp.Header("x-ratelimit-limit-tokens")),
			ResetTime: resp.Header("x-ratelimit-reset-requests"),
		},
	}
	if details.Models == nil {
		details.Models = []string{}
	}
	result.Details = details
	return result, nil
}

// CheckBalance 实现 BalanceChecker
func (OpenAIStrategy) CheckBalance(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*Balance, error) {
	resp, err := t.Send(ctx, &fetch.Request{
		URL:     openAIBillingURL,
		Method:  http.MethodGet,
		Headers: map[string]string{"Authorization": "Bearer " + in.Key},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("billing: %s", httpError(resp))
	}

	var body struct {
		HardLimitUSD       float64 `json:"hard_limit_usd"`
		SystemHardLimitUSD float64 `json:"system_hard_limit_usd"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	switch {
	case body.HardLimitUSD != 0:
		return &Balance{Amount: body.HardLimitUSD}, nil
	case body.SystemHardLimitUSD != 0:
		return &Balance{Amount: body.SystemHardLimitUSD}, nil
	}
	return nil, errNoBalance
}

// StaticModelsStrategy 有效时使用配置中的静态模型列表
type StaticModelsStrategy struct{}

// Validate 实现 Strategy
func (StaticModelsStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}
	result := classifyResult(cfg.ID, in.Format, resp)
	if result.IsValid {
		result.Details = &domain.ValidationDetails{Models: cfg.Models}
	}
	return result, nil
}

// GoogleStrategy 模型名取 models[].name 的最后一段
type GoogleStrategy struct{}

// Validate 实现 Strategy
func (GoogleStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}
	result := classifyResult(cfg.ID, in.Format, resp)
	if !result.IsValid {
		return result, nil
	}

	var body struct {
		Models []modelEntry `json:"models"`
	}
	models := []string{}
	if err := resp.Decode(&body); err == nil {
		for _, m := range body.Models {
			if name := lastSegment(m.Name); name != "" {
				models = append(models, name)
			}
		}
	}
	result.Details = &domain.ValidationDetails{Models: models}
	return result, nil
}

// BaiduStrategy 通过 OAuth 换取 access_token 验证 API Key 和 Secret Key
type BaiduStrategy struct{}

// Validate 实现 Strategy
func (BaiduStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusTooManyRequests || resp.Status >= 500 {
		return classifyResult(cfg.ID, in.Format, resp), nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	_ = resp.Decode(&body)
	if body.AccessToken == "" {
		return staticResult(cfg.ID, in.Format, domain.StatusInvalid, MsgBadCredentials, "Invalid credentials"), nil
	}

	return &domain.ValidationResult{
		IsValid:       true,
		Provider:      cfg.ID,
		RequestFormat: in.Format,
		Status:        domain.StatusValid,
		Message:       MsgValid,
		Details: &domain.ValidationDetails{
			Models: cfg.Models,
			AccountInfo: map[string]any{
				"expiresIn": body.ExpiresIn,
				"scope":     body.Scope,
			},
		},
	}, nil
}

// HuggingFaceStrategy 组织取 whoami 的 name 或 fullname
type HuggingFaceStrategy struct{}

// Validate 实现 Strategy
func (HuggingFaceStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}
	result := classifyResult(cfg.ID, in.Format, resp)
	if !result.IsValid {
		return result, nil
	}

	var body struct {
		Name     string `json:"name"`
		Fullname string `json:"fullname"`
		Type     string `json:"type"`
	}
	details := &domain.ValidationDetails{}
	if err := resp.Decode(&body); err == nil {
		details.Organization = body.Name
		if details.Organization == "" {
			details.Organization = body.Fullname
		}
		if body.Type != "" {
			details.AccountInfo = map[string]any{"type": body.Type}
		}
	}
	result.Details = details
	return result, nil
}

// SiliconFlowStrategy 模型列表加用户信息余额查询
type SiliconFlowStrategy struct{}

const siliconFlowUserInfoURL = "https://api.siliconflow.cn/v1/user/info"

var siliconFlowFallbackModels = []string{
	"deepseek-chat", "qwen-72b-chat", "llama-3-8b-instruct", "llama-3-70b-instruct", "yi-1.5-34b-chat",
}

// Validate 实现 Strategy
func (SiliconFlowStrategy) Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error) {
	resp, err := send(ctx, in, cfg, t)
	if err != nil {
		return nil, err
	}
	result := classifyResult(cfg.ID, in.Format, resp)
	if result.IsValid {
		result.Details = &domain.ValidationDetails{Models: modelsOr(resp, siliconFlowFallbackModels)}
	}
	return result, nil
}

// CheckBalance 实现 BalanceChecker
func (SiliconFlowStrategy) CheckBalance(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*Balance, error) {
	resp, err := t.Send(ctx, &fetch.Request{
		URL:    siliconFlowUserInfoURL,
		Method: http.MethodGet,
		Headers: map[string]string{
			"Authorization": "Bearer " + in.Key,
			"Content-Type":  "application/json",
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("user info: %s", httpError(resp))
	}

	var body struct {
		Code   int  `json:"code"`
		Status bool `json:"status"`
		Data   *struct {
			ID            string     `json:"id"`
			Name          string     `json:"name"`
			Email         string     `json:"email"`
			Role          string     `json:"role"`
			Status        string     `json:"status"`
			Balance       flexNumber `json:"balance"`
			ChargeBalance flexNumber `json:"chargeBalance"`
			TotalBalance  flexNumber `json:"totalBalance"`
		} `json:"data"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if body.Code != 20000 || !body.Status || body.Data == nil {
		return nil, errNoBalance
	}

	d := body.Data
	for _, candidate := range []flexNumber{d.TotalBalance, d.Balance, d.ChargeBalance} {
		amount, err := strconv.ParseFloat(string(candidate), 64)
		if err != nil || amount == 0 {
			continue
		}
		return &Balance{
			Amount: amount,
			AccountInfo: map[string]any{
				"userId":   d.ID,
				"username": d.Name,
				"email":    d.Email,
				"role":     d.Role,
				"status":   d.Status,
				"balanceDetails": map[string]string{
					"balance":       string(d.Balance),
					"chargeBalance": string(d.ChargeBalance),
					"totalBalance":  string(d.TotalBalance),
				},
			},
		}, nil
	}
	return nil, errNoBalance
}

// flexNumber 兼容数字和字符串形式的数值
type flexNumber string

// UnmarshalJSON 实现 json.Unmarshaler
func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexNumber(s)
	return nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
