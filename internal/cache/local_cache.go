package cache

import (
	"context"
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 使用 sync.Map 实现无锁读取
// - 每个条目独立过期时间
// - 由 Run 驱动后台清理，随 context 退出
type LocalCache[V any] struct {
	data sync.Map
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - ttl: 默认过期时间
func NewLocalCache[V any](ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		ttl: ttl,
		now: time.Now,
	}
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}

	entry := val.(*cacheEntry[V])
	if c.now().After(entry.expiresAt) {
		c.data.CompareAndDelete(key, val)
		return zero, false
	}
	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.data.Store(key, &cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
}

// GetOrCreate 获取缓存值，不存在时用 create 创建并写入
func (c *LocalCache[V]) GetOrCreate(key string, create func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	entry := &cacheEntry[V]{value: create(), expiresAt: c.now().Add(c.ttl)}
	actual, _ := c.data.LoadOrStore(key, entry)
	return actual.(*cacheEntry[V]).value
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.data.Delete(key)
}

// Clear 清空所有缓存
func (c *LocalCache[V]) Clear() {
	c.data.Range(func(key, _ any) bool {
		c.data.Delete(key)
		return true
	})
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	n := 0
	c.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Run 定期清理过期条目，直到 ctx 结束
func (c *LocalCache[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *LocalCache[V]) cleanup() {
	now := c.now()
	c.data.Range(func(key, value any) bool {
		if now.After(value.(*cacheEntry[V]).expiresAt) {
			c.data.Delete(key)
		}
		return true
	})
}
