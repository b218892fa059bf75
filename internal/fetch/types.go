package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout 单次请求默认超时
	DefaultTimeout = 30 * time.Second
	// maxBodySize 响应体读取上限
	maxBodySize = 8 << 20
)

// ErrRelayRejected 中转端点拒绝了目标主机
var ErrRelayRejected = errors.New("relay rejected destination host")

// TimeoutError 在超时时间内未收到响应
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError DNS 解析或连接失败
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTransportError 是否为传输层错误（超时、网络失败、中转拒绝）
func IsTransportError(err error) bool {
	var te *TimeoutError
	var ne *NetworkError
	return errors.As(err, &te) || errors.As(err, &ne) || errors.Is(err, ErrRelayRejected)
}

// Request 一次出站 HTTP 请求
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any // nil、[]byte、string 或可 JSON 序列化的值
	Timeout time.Duration
}

// Response 出站请求的响应，非 2xx 也是正常响应
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Data       json.RawMessage   `json:"data"`
	OK         bool              `json:"ok"`
}

// Header 按名称读取响应头（不区分大小写）
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// Decode 将响应体解析到 v
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Data, v)
}

// Sender 发送单次请求，不做重试
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc 函数形式的 Sender
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

// Send 实现 Sender
func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// NewResponse 由状态码、响应头和原始响应体构造响应
//
// 非 JSON 响应体按 JSON 字符串保存。
func NewResponse(status int, header http.Header, body []byte) *Response {
	headers := make(map[string]string, len(header))
	for name, values := range header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	var data json.RawMessage
	switch {
	case len(strings.TrimSpace(string(body))) == 0:
		data = json.RawMessage("null")
	case json.Valid(body):
		data = json.RawMessage(body)
	default:
		data, _ = json.Marshal(string(body))
	}

	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Headers:    headers,
		Data:       data,
		OK:         status >= 200 && status < 300,
	}
}

// RedactURL 去掉查询参数，避免 URL 中的密钥进入错误信息和日志
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
