package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已停止
var ErrPoolStopped = errors.New("worker pool stopped")

// Task 池中执行的任务
type Task func(ctx context.Context)

// WorkerPool 协程池
//
// 用于把快照持久化这类慢操作移出调度路径，并限制同时进行的写入数量。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan Task
	logger     *zap.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan Task, queueSize),
		logger:     logger,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满或池已停止，立即返回 false
func (p *WorkerPool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 停止接收任务，等待队列中的任务执行完
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker 工作协程
//
// ctx 结束后仍会排空队列，保证已提交的快照写入不丢失
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(ctx, task)
	}
}

func (p *WorkerPool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker task panicked", zap.Any("panic", r))
		}
	}()
	task(context.WithoutCancel(ctx))
}
