package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache(t *testing.T) {
	t.Run("读写与删除", func(t *testing.T) {
		c := NewLocalCache[int](time.Minute)
		c.Set("a", 1, 0)

		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)

		c.Delete("a")
		_, ok = c.Get("a")
		assert.False(t, ok)
	})

	t.Run("过期", func(t *testing.T) {
		c := NewLocalCache[string](time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }
		c.Set("k", "v", time.Second)

		now = now.Add(2 * time.Second)
		_, ok := c.Get("k")
		assert.False(t, ok)
	})

	t.Run("清理过期条目", func(t *testing.T) {
		c := NewLocalCache[string](time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }
		c.Set("old", "v", time.Second)
		c.Set("fresh", "v", time.Hour)

		now = now.Add(time.Minute)
		c.cleanup()
		assert.Equal(t, 1, c.Len())
	})

	t.Run("GetOrCreate只创建一次", func(t *testing.T) {
		c := NewLocalCache[*int](time.Minute)
		var created int
		var mu sync.Mutex
		var wg sync.WaitGroup
		results := make([]*int, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.GetOrCreate("ip", func() *int {
					mu.Lock()
					created++
					mu.Unlock()
					v := 0
					return &v
				})
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
		assert.GreaterOrEqual(t, created, 1)
	})

	t.Run("清空", func(t *testing.T) {
		c := NewLocalCache[int](time.Minute)
		c.Set("a", 1, 0)
		c.Set("b", 2, 0)
		c.Clear()
		assert.Equal(t, 0, c.Len())
	})
}
