package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

var (
	// ErrJobNotFound 任务快照不存在
	ErrJobNotFound = domain.ErrJobNotFound
	// ErrCacheMiss 缓存中没有探测结果
	ErrCacheMiss = errors.New("connectivity cache miss")
)

// JobRepository 定义任务快照存取操作。
//
// 快照中的条目不含原始密钥，只有掩码和指纹。
type JobRepository interface {
	SaveJob(ctx context.Context, job *domain.JobSnapshot) error
	GetJob(ctx context.Context, id string) (*domain.JobSnapshot, error)
	DeleteJob(ctx context.Context, id string) error
	// PruneJobs 删除 before 之前结束的任务，返回删除数量
	PruneJobs(ctx context.Context, before time.Time) (int, error)
}

// JobStore 定义完整的任务存储接口。
type JobStore interface {
	JobRepository

	Ping(ctx context.Context) error
	Close() error
}

// ConnectivityCache 连通性探测结果缓存
type ConnectivityCache = fetch.ConnectivityCache
