package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// 自定义请求校验提示
const (
	MsgURLRequired      = "URL不能为空"
	MsgURLInvalid       = "URL格式无效"
	MsgMethodInvalid    = "无效的HTTP方法"
	MsgTimeoutRange     = "超时时间必须在1-300000ms之间"
	MsgHeaderNameEmpty  = "请求头名称不能为空"
	MsgHostNotPermitted = "不允许请求内网地址"
)

// MaxCustomTimeoutMs 自定义请求超时上限
const MaxCustomTimeoutMs = 300_000

var ErrInvalidCustomRequest = errors.New("invalid custom request")

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// CustomRequest 自定义请求
type CustomRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	TimeoutMs int64             `json:"timeout"`
	Variables map[string]string `json:"variables"`
}

// CustomResponse 自定义请求的响应
type CustomResponse struct {
	Status         int               `json:"status"`
	StatusText     string            `json:"statusText"`
	Headers        map[string]string `json:"headers"`
	Body           json.RawMessage   `json:"body"`
	ResponseTimeMs int64             `json:"responseTime"`
	Error          string            `json:"error,omitempty"`
}

// RequestCheck 请求校验结果
type RequestCheck struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Template 内置请求模板
type Template struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Request     CustomRequest `json:"request"`
}

// CustomRequestService 自定义请求测试
//
// 只走直连，任意主机不能经过中转白名单。
type CustomRequestService struct {
	sender       fetch.Sender
	allowPrivate bool
	logger       *zap.Logger
	now          func() time.Time
}

// NewCustomRequestService 创建自定义请求服务
func NewCustomRequestService(direct fetch.Sender, allowPrivate bool, logger *zap.Logger) *CustomRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomRequestService{
		sender:       direct,
		allowPrivate: allowPrivate,
		logger:       logger,
		now:          time.Now,
	}
}

// ReplaceVariables 替换 {NAME} 形式的变量，用户变量覆盖内置变量
func (s *CustomRequestService) ReplaceVariables(text string, variables map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}

	now := s.now()
	values := map[string]string{
		"TIMESTAMP": strconv.FormatInt(now.UnixMilli(), 10),
		"ISO_DATE":  now.UTC().Format("2006-01-02T15:04:05.000Z"),
		"UNIX_TIME": strconv.FormatInt(now.Unix(), 10),
		"RANDOM":    strconv.FormatUint(rand.Uint64(), 36),
		"UUID":      uuid.NewString(),
	}
	for k, v := range variables {
		values[k] = v
	}

	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// ValidateRequest 校验请求配置
func (s *CustomRequestService) ValidateRequest(req CustomRequest) RequestCheck {
	errs := []string{}

	if strings.TrimSpace(req.URL) == "" {
		errs = append(errs, MsgURLRequired)
	} else if u, err := parseTargetURL(s.ReplaceVariables(req.URL, req.Variables)); err != nil {
		errs = append(errs, MsgURLInvalid)
	} else if !s.allowPrivate && isPrivateHost(u.Hostname()) {
		errs = append(errs, MsgHostNotPermitted)
	}

	if !allowedMethods[strings.ToUpper(req.Method)] {
		errs = append(errs, MsgMethodInvalid)
	}

	if req.TimeoutMs <= 0 || req.TimeoutMs > MaxCustomTimeoutMs {
		errs = append(errs, MsgTimeoutRange)
	}

	for name := range req.Headers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, MsgHeaderNameEmpty)
			break
		}
	}

	return RequestCheck{IsValid: len(errs) == 0, Errors: errs}
}

// Execute 执行自定义请求
//
// 配置无效时返回 ErrInvalidCustomRequest；超时和网络错误体现在响应中（status 为 0）。
func (s *CustomRequestService) Execute(ctx context.Context, req CustomRequest) (*CustomResponse, error) {
	if check := s.ValidateRequest(req); !check.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCustomRequest, strings.Join(check.Errors, "; "))
	}

	method := strings.ToUpper(req.Method)
	headers := make(map[string]string, len(req.Headers))
	for name, value := range req.Headers {
		headers[name] = s.ReplaceVariables(value, req.Variables)
	}

	out := &fetch.Request{
		URL:     s.ReplaceVariables(req.URL, req.Variables),
		Method:  method,
		Headers: headers,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	if req.Body != "" && method != http.MethodGet {
		out.Body = s.ReplaceVariables(req.Body, req.Variables)
	}

	start := s.now()
	resp, err := s.sender.Send(ctx, out)
	elapsed := s.now().Sub(start).Milliseconds()

	if err != nil {
		s.logger.Debug("Custom request failed",
			zap.String("url", fetch.RedactURL(out.URL)),
			zap.Error(err),
		)
		var te *fetch.TimeoutError
		if errors.As(err, &te) {
			return &CustomResponse{
				Status:         0,
				StatusText:     "Request Timeout",
				Headers:        map[string]string{},
				Body:           json.RawMessage("null"),
				ResponseTimeMs: elapsed,
				Error:          fmt.Sprintf("请求超时 (%dms)", req.TimeoutMs),
			}, nil
		}
		msg := err.Error()
		if errors.Is(err, fetch.ErrPrivateAddress) {
			msg = MsgHostNotPermitted
		}
		return &CustomResponse{
			Status:         0,
			StatusText:     "Network Error",
			Headers:        map[string]string{},
			Body:           json.RawMessage("null"),
			ResponseTimeMs: elapsed,
			Error:          msg,
		}, nil
	}

	return &CustomResponse{
		Status:         resp.Status,
		StatusText:     resp.StatusText,
		Headers:        resp.Headers,
		Body:           resp.Data,
		ResponseTimeMs: elapsed,
	}, nil
}

// Templates 内置模板，只读
func (s *CustomRequestService) Templates() []Template {
	return defaultTemplates()
}

func parseTargetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported url %q", fetch.RedactURL(raw))
	}
	return u, nil
}

// isPrivateHost 提前拒绝字面量地址和 localhost，域名解析结果由发送器在连接时检查
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && fetch.IsPrivateIP(ip)
}

func defaultTemplates() []Template {
	jsonHeaders := func(auth map[string]string) map[string]string {
		h := map[string]string{"Content-Type": "application/json"}
		for k, v := range auth {
			h[k] = v
		}
		return h
	}
	vars := func() map[string]string { return map[string]string{"API_KEY": ""} }

	return []Template{
		{
			ID:          "default-openai-models",
			Name:        "OpenAI - 获取模型列表",
			Description: "验证OpenAI API Key并获取可用模型",
			Category:    "openai",
			Request: CustomRequest{
				URL:       "https://api.openai.com/v1/models",
				Method:    http.MethodGet,
				Headers:   jsonHeaders(map[string]string{"Authorization": "Bearer {API_KEY}"}),
				TimeoutMs: 30_000,
				Variables: vars(),
			},
		},
		{
			ID:          "default-openai-chat",
			Name:        "OpenAI - Chat Completions",
			Description: "测试OpenAI聊天接口",
			Category:    "openai",
			Request: CustomRequest{
				URL:       "https://api.openai.com/v1/chat/completions",
				Method:    http.MethodPost,
				Headers:   jsonHeaders(map[string]string{"Authorization": "Bearer {API_KEY}"}),
				Body:      `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"Hello!"}],"max_tokens":10}`,
				TimeoutMs: 30_000,
				Variables: vars(),
			},
		},
		{
			ID:          "default-claude-messages",
			Name:        "Anthropic - Messages",
			Description: "测试Claude API消息接口",
			Category:    "anthropic",
			Request: CustomRequest{
				URL:    "https://api.anthropic.com/v1/messages",
				Method: http.MethodPost,
				Headers: jsonHeaders(map[string]string{
					"x-api-key":         "{API_KEY}",
					"anthropic-version": "2023-06-01",
				}),
				Body:      `{"model":"claude-3-sonnet-20240229","max_tokens":10,"messages":[{"role":"user","content":"Hello!"}]}`,
				TimeoutMs: 30_000,
				Variables: vars(),
			},
		},
		{
			ID:          "default-gemini-models",
			Name:        "Google AI - 获取模型列表",
			Description: "验证Google AI API Key并获取模型",
			Category:    "google",
			Request: CustomRequest{
				URL:       "https://generativelanguage.googleapis.com/v1/models?key={API_KEY}",
				Method:    http.MethodGet,
				Headers:   map[string]string{},
				TimeoutMs: 30_000,
				Variables: vars(),
			},
		},
		{
			ID:          "default-custom-endpoint",
			Name:        "自定义端点测试",
			Description: "自定义API端点测试模板",
			Category:    "custom",
			Request: CustomRequest{
				URL:       "https://api.example.com/endpoint",
				Method:    http.MethodGet,
				Headers:   jsonHeaders(map[string]string{"Authorization": "Bearer {API_KEY}"}),
				TimeoutMs: 30_000,
				Variables: vars(),
			},
		},
	}
}
