package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RelayPayload 中转端点请求体
type RelayPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    any               `json:"data,omitempty"`
	Timeout int64             `json:"timeout,omitempty"` // 毫秒
}

// RelayError 中转端点错误响应体
type RelayError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// relayGrace 本地等待中转响应的额外时间，让中转端先报告超时
const relayGrace = 2 * time.Second

// RelaySender 通过同源中转端点转发请求
type RelaySender struct {
	endpoint string
	client   *http.Client
}

// NewRelaySender 创建中转发送器
func NewRelaySender(endpoint string, client *http.Client) *RelaySender {
	if client == nil {
		client = &http.Client{}
	}
	return &RelaySender{endpoint: endpoint, client: client}
}

// Endpoint 中转端点地址
func (s *RelaySender) Endpoint() string {
	return s.endpoint
}

// Send 将请求封装后交给中转端点
//
// 中转 408 对应 *TimeoutError，403 对应 ErrRelayRejected，其他非 200 对应 *NetworkError。
func (s *RelaySender) Send(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	target := RedactURL(req.URL)

	payload := RelayPayload{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Timeout: timeout.Milliseconds(),
	}
	if req.Method != http.MethodGet && req.Method != "" {
		payload.Data = req.Body
	}
	if payload.Method == "" {
		payload.Method = http.MethodGet
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode relay payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+relayGrace)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, req.URL, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyError(ctx, req.URL, timeout, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out Response
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &NetworkError{URL: target, Err: fmt.Errorf("malformed relay response: %w", err)}
		}
		if out.StatusText == "" {
			out.StatusText = http.StatusText(out.Status)
		}
		return &out, nil
	case http.StatusRequestTimeout:
		return nil, &TimeoutError{URL: target, Timeout: timeout, Err: errors.New(relayErrorText(raw))}
	case http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", target, ErrRelayRejected)
	default:
		return nil, &NetworkError{URL: target, Err: fmt.Errorf("relay status %d: %s", resp.StatusCode, relayErrorText(raw))}
	}
}

func relayErrorText(raw []byte) string {
	var re RelayError
	if err := json.Unmarshal(raw, &re); err != nil || re.Error == "" {
		return string(bytes.TrimSpace(raw))
	}
	if re.Details != "" {
		return re.Error + ": " + re.Details
	}
	return re.Error
}
