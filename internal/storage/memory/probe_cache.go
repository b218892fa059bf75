package memory

import (
	"context"
	"time"

	"github.com/chatUnique/keyguard-pro/internal/cache"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

const probeKey = "connectivity"

// ProbeCache 进程内连通性缓存
type ProbeCache struct {
	cache *cache.LocalCache[fetch.Connectivity]
}

// NewProbeCache 创建进程内连通性缓存
func NewProbeCache(ttl time.Duration) *ProbeCache {
	return &ProbeCache{cache: cache.NewLocalCache[fetch.Connectivity](ttl)}
}

// Load 实现 fetch.ConnectivityCache
func (p *ProbeCache) Load(context.Context) (*fetch.Connectivity, error) {
	c, ok := p.cache.Get(probeKey)
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	return &c, nil
}

// Store 实现 fetch.ConnectivityCache
func (p *ProbeCache) Store(_ context.Context, c fetch.Connectivity, ttl time.Duration) error {
	c.Cached = false
	p.cache.Set(probeKey, c, ttl)
	return nil
}

var _ fetch.ConnectivityCache = (*ProbeCache)(nil)
