package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

func TestJobStore_Operations(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	item := domain.NewWorkItem(domain.ProviderOpenAI, "sk-test-1234567890")
	item.Redact()
	job := &domain.JobSnapshot{
		ID:        "job-1",
		State:     domain.JobRunning,
		Items:     []domain.WorkItem{item},
		CreatedAt: time.Now(),
	}

	// Test SaveJob
	require.NoError(t, store.SaveJob(ctx, job))

	// 修改原对象不影响已保存的快照
	job.Items[0].Status = domain.StatusValid

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, got.State)
	require.Len(t, got.Items, 1)
	assert.Equal(t, domain.StatusPending, got.Items[0].Status)

	// Test ListJobs
	list := store.ListJobs()
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Items)

	// Test DeleteJob
	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	_, err = store.GetJob(ctx, "job-1")
	assert.ErrorIs(t, err, storage.ErrJobNotFound)
	assert.ErrorIs(t, store.DeleteJob(ctx, "job-1"), storage.ErrJobNotFound)
}

func TestJobStore_Prune(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	require.NoError(t, store.SaveJob(ctx, &domain.JobSnapshot{ID: "old", State: domain.JobCompleted, FinishedAt: &old}))
	require.NoError(t, store.SaveJob(ctx, &domain.JobSnapshot{ID: "recent", State: domain.JobStopped, FinishedAt: &recent}))
	require.NoError(t, store.SaveJob(ctx, &domain.JobSnapshot{ID: "running", State: domain.JobRunning}))

	removed, err := store.PruneJobs(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetJob(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrJobNotFound)
	_, err = store.GetJob(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.GetJob(ctx, "running")
	assert.NoError(t, err)
}

func TestProbeCache(t *testing.T) {
	ctx := context.Background()
	cache := NewProbeCache(time.Minute)

	t.Run("未写入时未命中", func(t *testing.T) {
		_, err := cache.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrCacheMiss)
	})

	t.Run("后写覆盖先写", func(t *testing.T) {
		require.NoError(t, cache.Store(ctx, fetch.Connectivity{State: fetch.ProbeDirectOnly}, time.Minute))
		require.NoError(t, cache.Store(ctx, fetch.Connectivity{State: fetch.ProbeBoth}, time.Minute))

		c, err := cache.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, fetch.ProbeBoth, c.State)
	})

	t.Run("过期后未命中", func(t *testing.T) {
		require.NoError(t, cache.Store(ctx, fetch.Connectivity{State: fetch.ProbeBoth}, time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, err := cache.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrCacheMiss)
	})
}
