package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/proxy"
)

// DirectOptions 直连发送器配置
type DirectOptions struct {
	// UpstreamProxy 出站代理，支持 http://、https://、socks5://，为空时读取环境变量
	UpstreamProxy string
	// UserAgent 为空时不设置
	UserAgent string
	// CheckRedirect 每次跳转前调用，返回错误时终止
	CheckRedirect func(req *http.Request, via []*http.Request) error
	// BlockPrivate 为 true 时在建立连接时拒绝回环、内网和链路本地地址，
	// 此时不使用任何代理
	BlockPrivate bool
}

// ErrPrivateAddress 目标解析到了受限地址
var ErrPrivateAddress = errors.New("destination resolves to a private address")

// DirectSender 直接向目标发起 HTTP 请求
type DirectSender struct {
	client    *http.Client
	userAgent string
}

// NewDirectSender 创建直连发送器
func NewDirectSender(opts DirectOptions) (*DirectSender, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if opts.BlockPrivate {
		dialer.Control = rejectPrivate
		transport.Proxy = nil
	} else if opts.UpstreamProxy != "" {
		proxyURL, err := url.Parse(opts.UpstreamProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream proxy: %w", err)
		}
		switch strings.ToLower(proxyURL.Scheme) {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			socks, err := proxy.FromURL(proxyURL, dialer)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			contextDialer, ok := socks.(proxy.ContextDialer)
			if !ok {
				return nil, errors.New("SOCKS5 dialer does not support context")
			}
			transport.Proxy = nil
			transport.DialContext = contextDialer.DialContext
		default:
			return nil, fmt.Errorf("unsupported upstream proxy scheme %q", proxyURL.Scheme)
		}
	}

	return &DirectSender{
		client:    &http.Client{Transport: transport, CheckRedirect: opts.CheckRedirect},
		userAgent: opts.UserAgent,
	}, nil
}

// rejectPrivate 检查实际连接的地址，覆盖域名解析和跳转
func rejectPrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}
	if IsPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return nil
}

// IsPrivateIP 回环、内网、链路本地或未指定地址
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// NewDirectSenderWithClient 使用现有 http.Client 创建发送器
func NewDirectSenderWithClient(client *http.Client) *DirectSender {
	if client == nil {
		client = &http.Client{}
	}
	return &DirectSender{client: client}
}

// Send 发送请求，超时返回 *TimeoutError，连接失败返回 *NetworkError
func (s *DirectSender) Send(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(method, req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &NetworkError{URL: RedactURL(req.URL), Err: err}
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if s.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, req.URL, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyError(ctx, req.URL, timeout, err)
	}
	return NewResponse(resp.StatusCode, resp.Header, raw), nil
}

// encodeBody GET/HEAD 不发送请求体
func encodeBody(method string, body any) (io.Reader, error) {
	if body == nil || method == http.MethodGet || method == http.MethodHead {
		return nil, nil
	}
	switch b := body.(type) {
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

func classifyError(ctx context.Context, rawURL string, timeout time.Duration, err error) error {
	target := RedactURL(rawURL)
	// url.Error 的文本包含完整 URL
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{URL: target, Timeout: timeout, Err: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: target, Timeout: timeout, Err: err}
	}
	return &NetworkError{URL: target, Err: err}
}
