package fetch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConnectivityCache 探测结果缓存，后写覆盖先写
type ConnectivityCache interface {
	Load(ctx context.Context) (*Connectivity, error)
	Store(ctx context.Context, c Connectivity, ttl time.Duration) error
}

// ProberConfig 探测配置
type ProberConfig struct {
	URL           string
	DirectTimeout time.Duration
	RelayTimeout  time.Duration
	CacheTTL      time.Duration
}

// DefaultProberConfig 默认探测配置
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		URL:           "https://api.openai.com/v1/models",
		DirectTimeout: 3 * time.Second,
		RelayTimeout:  5 * time.Second,
		CacheTTL:      5 * time.Minute,
	}
}

// Prober 连通性探测器
//
// 用一个必然返回 401 的请求分别探测直连和中转路径，收到 401 即视为可达。
// 探测本身不会失败，不可达只是结果为 false。
type Prober struct {
	direct Sender
	relay  Sender
	cache  ConnectivityCache
	cfg    ProberConfig
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state ProbeState
	last  *Connectivity
}

// NewProber 创建探测器，relay 和 cache 可以为 nil
func NewProber(direct, relay Sender, cache ConnectivityCache, cfg ProberConfig, logger *zap.Logger) *Prober {
	defaults := DefaultProberConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.DirectTimeout <= 0 {
		cfg.DirectTimeout = defaults.DirectTimeout
	}
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = defaults.RelayTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		direct: direct,
		relay:  relay,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  ProbeUnknown,
	}
}

// State 当前探测状态
func (p *Prober) State() ProbeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Check 返回连通性结果，force 为 true 时跳过缓存重新探测
func (p *Prober) Check(ctx context.Context, force bool) Connectivity {
	if !force {
		if cached, ok := p.cached(ctx); ok {
			return cached
		}
	}

	p.setState(ProbeProbing, nil)

	var direct, relay bool
	var directLatency, relayLatency int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		direct, directLatency = p.probe(gctx, p.direct, p.cfg.DirectTimeout)
		return nil
	})
	if p.relay != nil {
		g.Go(func() error {
			relay, relayLatency = p.probe(gctx, p.relay, p.cfg.RelayTimeout)
			return nil
		})
	}
	_ = g.Wait()

	now := p.now()
	result := Connectivity{
		State:           stateOf(direct, relay),
		Direct:          direct,
		Relay:           relay,
		Recommended:     recommend(direct, relay),
		DirectLatencyMs: directLatency,
		RelayLatencyMs:  relayLatency,
		CheckedAt:       now,
		ExpiresAt:       now.Add(p.cfg.CacheTTL),
	}
	p.setState(result.State, &result)

	if p.cache != nil {
		if err := p.cache.Store(ctx, result, p.cfg.CacheTTL); err != nil {
			p.logger.Warn("Failed to cache connectivity result", zap.Error(err))
		}
	}

	p.logger.Info("Connectivity probed",
		zap.String("state", string(result.State)),
		zap.String("recommended", string(result.Recommended)),
		zap.Int64("direct_ms", directLatency),
		zap.Int64("relay_ms", relayLatency),
	)
	return result
}

func (p *Prober) cached(ctx context.Context) (Connectivity, bool) {
	now := p.now()
	if p.cache != nil {
		c, err := p.cache.Load(ctx)
		if err != nil {
			p.logger.Debug("Connectivity cache miss", zap.Error(err))
		} else if c != nil && !c.Expired(now) {
			out := *c
			out.Cached = true
			p.setState(out.State, &out)
			return out, true
		}
		return Connectivity{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last != nil && !p.last.Expired(now) {
		out := *p.last
		out.Cached = true
		return out, true
	}
	return Connectivity{}, false
}

func (p *Prober) setState(state ProbeState, last *Connectivity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	if last != nil {
		p.last = last
	}
}

func (p *Prober) probe(ctx context.Context, sender Sender, timeout time.Duration) (bool, int64) {
	start := p.now()
	resp, err := sender.Send(ctx, &Request{
		URL:     p.cfg.URL,
		Method:  http.MethodGet,
		Headers: map[string]string{"Authorization": "Bearer test"},
		Timeout: timeout,
	})
	elapsed := p.now().Sub(start).Milliseconds()
	if err != nil {
		p.logger.Debug("Probe failed", zap.Error(err))
		return false, elapsed
	}
	return resp.Status == http.StatusUnauthorized, elapsed
}
