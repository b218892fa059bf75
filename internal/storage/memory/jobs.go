package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

// JobStore 使用内存保存任务快照，主要用于开发和单实例部署。
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobSnapshot
}

// NewJobStore 创建内存任务存储
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.JobSnapshot)}
}

// SaveJob 保存快照副本，同 ID 覆盖
func (s *JobStore) SaveJob(_ context.Context, job *domain.JobSnapshot) error {
	clone := cloneJob(job)
	s.mu.Lock()
	s.jobs[job.ID] = clone
	s.mu.Unlock()
	return nil
}

// GetJob 获取快照副本
func (s *JobStore) GetJob(_ context.Context, id string) (*domain.JobSnapshot, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// DeleteJob 删除快照
func (s *JobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return storage.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// PruneJobs 删除 before 之前结束的任务
func (s *JobStore) PruneJobs(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(before) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// ListJobs 按创建时间倒序列出快照，不含条目
func (s *JobStore) ListJobs() []domain.JobSnapshot {
	s.mu.RLock()
	out := make([]domain.JobSnapshot, 0, len(s.jobs))
	for _, job := range s.jobs {
		summary := *job
		summary.Items = nil
		out = append(out, summary)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Ping 实现 storage.JobStore
func (s *JobStore) Ping(context.Context) error { return nil }

// Close 实现 storage.JobStore
func (s *JobStore) Close() error { return nil }

func cloneJob(job *domain.JobSnapshot) *domain.JobSnapshot {
	clone := *job
	clone.Items = make([]domain.WorkItem, len(job.Items))
	copy(clone.Items, job.Items)
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		clone.FinishedAt = &finished
	}
	return &clone
}

var _ storage.JobStore = (*JobStore)(nil)
