package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

const (
	// UserAgent 转发请求使用的 User-Agent
	UserAgent = "KeyGuard-Pro/1.0"
	// DefaultTimeout 默认转发超时
	DefaultTimeout = 15 * time.Second
	// MaxTimeout 单次转发允许的最大超时
	MaxTimeout = 120 * time.Second
)

// 中转错误提示
const (
	MsgHostNotAllowed = "不允许的API端点"
	MsgTimeout        = "请求超时"
	MsgFailed         = "代理请求失败"
)

var (
	// ErrHostNotAllowed 目标主机不在白名单中
	ErrHostNotAllowed = errors.New("destination host not allowed")
	// ErrInvalidURL 目标 URL 无法解析
	ErrInvalidURL = errors.New("invalid destination url")
)

// Request 中转请求
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Data    json.RawMessage   `json:"data"`
	Timeout int64             `json:"timeout"` // 毫秒
}

// Outcome 转发结果分类，用于指标
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeFailed   Outcome = "failed"
)

// Forwarder 校验目标主机后转发请求
type Forwarder struct {
	allow          *AllowList
	sender         fetch.Sender
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewForwarder 创建转发器
func NewForwarder(allow *AllowList, sender fetch.Sender, defaultTimeout time.Duration, logger *zap.Logger) *Forwarder {
	if allow == nil {
		allow = NewAllowList()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		allow:          allow,
		sender:         sender,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// AllowList 转发器使用的白名单
func (f *Forwarder) AllowList() *AllowList {
	return f.allow
}

// Forward 转发请求，白名单校验在任何出站请求之前完成
func (f *Forwarder) Forward(ctx context.Context, req Request) (*fetch.Response, error) {
	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, fetch.RedactURL(req.URL))
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, target.Scheme)
	}
	if !f.allow.Allowed(target.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, target.Hostname())
	}

	timeout := f.defaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for name, value := range req.Headers {
		if strings.EqualFold(name, "User-Agent") {
			continue
		}
		headers[name] = value
	}
	headers["User-Agent"] = UserAgent

	out := &fetch.Request{
		URL:     target.String(),
		Method:  method,
		Headers: headers,
		Timeout: timeout,
	}
	if data := bytes.TrimSpace(req.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		out.Body = json.RawMessage(data)
	}

	resp, err := f.sender.Send(ctx, out)
	if err != nil {
		f.logger.Warn("Relay request failed",
			zap.String("host", target.Hostname()),
			zap.String("method", method),
			zap.Error(err),
		)
		return nil, err
	}

	f.logger.Debug("Relay request forwarded",
		zap.String("host", target.Hostname()),
		zap.String("method", method),
		zap.Int("status", resp.Status),
	)
	return resp, nil
}

// ErrorResponse 将转发错误映射为 HTTP 状态码和错误响应体
func ErrorResponse(err error) (int, Outcome, fetch.RelayError) {
	var te *fetch.TimeoutError
	switch {
	case errors.Is(err, ErrHostNotAllowed):
		return http.StatusForbidden, OutcomeRejected, fetch.RelayError{Error: MsgHostNotAllowed}
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, OutcomeTimeout, fetch.RelayError{Error: MsgTimeout}
	default:
		return http.StatusInternalServerError, OutcomeFailed, fetch.RelayError{Error: MsgFailed, Details: err.Error()}
	}
}
