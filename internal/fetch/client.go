package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer 出站请求观察者（用于指标）
type Observer interface {
	ObserveOutbound(path string, status int, err error, elapsed time.Duration)
}

// Client 绑定到某一路径的传输客户端
type Client struct {
	path     Path
	sender   Sender
	observer Observer
}

// Path 客户端使用的出站路径
func (c *Client) Path() Path {
	return c.path
}

// Send 实现 Sender
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := c.sender.Send(ctx, req)
	if c.observer != nil {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		c.observer.ObserveOutbound(string(c.path), status, err, time.Since(start))
	}
	return resp, err
}

// Factory 按偏好和连通性构建客户端
type Factory struct {
	direct   Sender
	relay    Sender
	prober   *Prober
	pref     Preference
	observer Observer
	logger   *zap.Logger
}

// FactoryOption Factory 选项
type FactoryOption func(*Factory)

// WithObserver 设置出站请求观察者
func WithObserver(o Observer) FactoryOption {
	return func(f *Factory) { f.observer = o }
}

// NewFactory 创建客户端工厂，relay 为 nil 时总是直连
func NewFactory(direct, relay Sender, prober *Prober, pref Preference, logger *zap.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if relay == nil {
		pref.RelayEnabled = false
	}
	f := &Factory{
		direct: direct,
		relay:  relay,
		prober: prober,
		pref:   pref,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Preference 当前路径偏好
func (f *Factory) Preference() Preference {
	return f.pref
}

// NewClient 构建客户端，路径在构建时确定一次
func (f *Factory) NewClient(ctx context.Context) *Client {
	var conn Connectivity
	if f.pref.RelayEnabled && !f.pref.ForceRelay && f.pref.AutoDetect && f.prober != nil {
		conn = f.prober.Check(ctx, false)
	}

	path := SelectPath(f.pref, conn)
	sender := f.direct
	if path == PathRelay {
		sender = f.relay
	}

	f.logger.Debug("Transport client created", zap.String("path", string(path)))
	return &Client{path: path, sender: sender, observer: f.observer}
}
