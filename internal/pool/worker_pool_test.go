package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	t.Run("执行全部任务", func(t *testing.T) {
		p := NewWorkerPool(3, 10, nil)
		p.Start(context.Background())

		var count atomic.Int32
		for i := 0; i < 20; i++ {
			require.NoError(t, p.Submit(context.Background(), func(context.Context) {
				count.Add(1)
			}))
		}
		p.Stop()
		assert.Equal(t, int32(20), count.Load())
	})

	t.Run("panic不影响其他任务", func(t *testing.T) {
		p := NewWorkerPool(1, 4, nil)
		p.Start(context.Background())

		var count atomic.Int32
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { count.Add(1) }))
		p.Stop()
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("停止后拒绝提交", func(t *testing.T) {
		p := NewWorkerPool(1, 1, nil)
		p.Start(context.Background())
		p.Stop()
		p.Stop()

		assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrPoolStopped)
		assert.False(t, p.TrySubmit(func(context.Context) {}))
	})

	t.Run("队列满时TrySubmit失败", func(t *testing.T) {
		p := NewWorkerPool(1, 1, nil)
		release := make(chan struct{})
		started := make(chan struct{})
		p.Start(context.Background())

		require.True(t, p.TrySubmit(func(context.Context) {
			close(started)
			<-release
		}))
		<-started
		require.True(t, p.TrySubmit(func(context.Context) {}))
		assert.False(t, p.TrySubmit(func(context.Context) {}))

		close(release)
		p.Stop()
	})

	t.Run("取消后任务仍拿到有效上下文", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewWorkerPool(1, 2, nil)
		p.Start(ctx)
		cancel()

		done := make(chan error, 1)
		require.True(t, p.TrySubmit(func(taskCtx context.Context) {
			done <- taskCtx.Err()
		}))
		p.Stop()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	})
}
