package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

const (
	keyPrefix       = "keyguard:"
	probeKey        = keyPrefix + "connectivity"
	finishedJobsKey = keyPrefix + "jobs:finished"
)

func jobKey(id string) string {
	return fmt.Sprintf("%sjob:%s", keyPrefix, id)
}

// ========== 任务快照 ==========

// JobStore Redis 任务存储
//
// 快照以 JSON 保存并带过期时间，已结束任务的 ID 记录在按结束时间排序的集合中。
type JobStore struct {
	client *Client
	ttl    time.Duration
}

// NewJobStore 创建 Redis 任务存储
func NewJobStore(client *Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobStore{client: client, ttl: ttl}
}

// SaveJob 保存任务快照
func (s *JobStore) SaveJob(ctx context.Context, job *domain.JobSnapshot) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, s.ttl)
	if job.FinishedAt != nil {
		pipe.ZAdd(ctx, finishedJobsKey, goredis.Z{
			Score:  float64(job.FinishedAt.Unix()),
			Member: job.ID,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetJob 获取任务快照
func (s *JobStore) GetJob(ctx context.Context, id string) (*domain.JobSnapshot, error) {
	data, err := s.client.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrJobNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

// DeleteJob 删除任务快照
func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	pipe := s.client.rdb.TxPipeline()
	del := pipe.Del(ctx, jobKey(id))
	pipe.ZRem(ctx, finishedJobsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// PruneJobs 删除 before 之前结束的任务
func (s *JobStore) PruneJobs(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.rdb.ZRangeByScore(ctx, finishedJobsKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
		members[i] = id
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, finishedJobsKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping 实现 storage.JobStore
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close 实现 storage.JobStore
func (s *JobStore) Close() error {
	return s.client.Close()
}

func decodeJob(data []byte) (*domain.JobSnapshot, error) {
	var job domain.JobSnapshot
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// ========== 连通性缓存 ==========

// ProbeCache Redis 连通性缓存，多实例共享同一份探测结果
type ProbeCache struct {
	client *Client
}

// NewProbeCache 创建 Redis 连通性缓存
func NewProbeCache(client *Client) *ProbeCache {
	return &ProbeCache{client: client}
}

// Load 实现 fetch.ConnectivityCache
func (p *ProbeCache) Load(ctx context.Context) (*fetch.Connectivity, error) {
	data, err := p.client.rdb.Get(ctx, probeKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrCacheMiss
		}
		return nil, err
	}
	var c fetch.Connectivity
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode connectivity: %w", err)
	}
	return &c, nil
}

// Store 实现 fetch.ConnectivityCache
func (p *ProbeCache) Store(ctx context.Context, c fetch.Connectivity, ttl time.Duration) error {
	c.Cached = false
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.client.rdb.Set(ctx, probeKey, data, ttl).Err()
}

var (
	_ storage.JobStore        = (*JobStore)(nil)
	_ fetch.ConnectivityCache = (*ProbeCache)(nil)
)
