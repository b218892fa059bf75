package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/pool"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

// 任务管理默认值
const (
	DefaultMaxItems      = 1000
	DefaultMaxActiveJobs = 10
	DefaultJobTTL        = 24 * time.Hour
	DefaultPersistEvery  = time.Second
)

// ValidatorFactory 按任务配置构造验证函数
type ValidatorFactory func(cfg domain.BatchConfig) ValidateFunc

// TokenIssuer 签发任务令牌
type TokenIssuer interface {
	Issue(jobID string) (string, time.Time, error)
}

// Notifier 推送任务进度，实现方不得阻塞
type Notifier interface {
	NotifyProgress(jobID string, stats domain.BatchStatistics)
	NotifyItem(jobID string, item domain.WorkItem)
	NotifyComplete(jobID string, snapshot *domain.JobSnapshot)
}

// Observer 任务指标观察者
type Observer interface {
	JobStarted()
	JobFinished(state domain.JobState, elapsed time.Duration)
	ItemFinished(item domain.WorkItem)
}

// ManagerConfig 任务管理配置
type ManagerConfig struct {
	MaxItems      int
	MaxActiveJobs int
	JobTTL        time.Duration
	PersistEvery  time.Duration
	// Defaults 请求未指定时使用的调度参数
	Defaults Config
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.MaxActiveJobs <= 0 {
		c.MaxActiveJobs = DefaultMaxActiveJobs
	}
	if c.JobTTL <= 0 {
		c.JobTTL = DefaultJobTTL
	}
	if c.PersistEvery <= 0 {
		c.PersistEvery = DefaultPersistEvery
	}
	c.Defaults = c.Defaults.withDefaults()
	return c
}

// ManagerDeps 任务管理依赖，除 Factory 和 Tokens 外均可为 nil
type ManagerDeps struct {
	Factory  ValidatorFactory
	Tokens   TokenIssuer
	Store    storage.JobRepository
	Pool     *pool.WorkerPool
	Notifier Notifier
	Observer Observer
	Logger   *zap.Logger
}

// Job 已创建的任务
type Job struct {
	ID             string             `json:"jobId"`
	Token          string             `json:"token"`
	TokenExpiresAt time.Time          `json:"tokenExpiresAt"`
	Status         ProcessingStatus   `json:"status"`
	Config         domain.BatchConfig `json:"config"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type jobEntry struct {
	id        string
	config    domain.BatchConfig
	scheduler *Scheduler
	createdAt time.Time
	done      chan struct{}

	mu          sync.Mutex
	finishedAt  *time.Time
	lastPersist time.Time

	// 快照按生成时间单调写入，旧快照不会覆盖新快照
	saveMu  sync.Mutex
	savedAt time.Time
}

func (e *jobEntry) finished() (*time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishedAt, e.finishedAt != nil
}

// snapshot 当前快照，条目不含密钥
func (e *jobEntry) snapshot() *domain.JobSnapshot {
	view := e.scheduler.Snapshot()
	finishedAt, _ := e.finished()
	return &domain.JobSnapshot{
		ID:         e.id,
		State:      view.Status.State,
		Config:     e.config,
		Items:      view.Items,
		Statistics: view.Statistics,
		CreatedAt:  e.createdAt,
		UpdatedAt:  time.Now().UTC(),
		FinishedAt: finishedAt,
	}
}

// Manager 按任务ID管理调度器实例
type Manager struct {
	cfg  ManagerConfig
	deps ManagerDeps
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

// NewManager 创建任务管理器
func NewManager(cfg ManagerConfig, deps ManagerDeps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		log:    deps.Logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

// Config 生效的管理配置
func (m *Manager) Config() ManagerConfig {
	return m.cfg
}

// ResolveConfig 用默认值补齐请求中的调度参数
func (m *Manager) ResolveConfig(req domain.BatchConfig) domain.BatchConfig {
	d := m.cfg.Defaults
	if req.Concurrency <= 0 {
		req.Concurrency = d.Concurrency
	}
	if req.MaxRetries < 0 {
		req.MaxRetries = 0
	}
	if req.RetryDelayMs <= 0 {
		req.RetryDelayMs = d.RetryDelay.Milliseconds()
	}
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = d.Timeout.Milliseconds()
	}
	return req
}

func (m *Manager) schedulerConfig(cfg domain.BatchConfig) Config {
	return Config{
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.TimeoutMs) * time.Millisecond,
		PausePoll:   m.cfg.Defaults.PausePoll,
		Retryable:   m.cfg.Defaults.Retryable,
	}
}

// activeLocked 未结束的任务数
func (m *Manager) activeLocked() int {
	n := 0
	for _, e := range m.jobs {
		if _, done := e.finished(); !done {
			n++
		}
	}
	return n
}

// Create 创建并启动任务，返回时任务已处于运行状态
//
// 空条目返回 domain.ErrEmptyBatch，超过条目上限返回 domain.ErrTooManyItems，
// 活跃任务数达到上限返回 domain.ErrTooManyJobs。
func (m *Manager) Create(items []domain.WorkItem, req domain.BatchConfig) (*Job, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(items) > m.cfg.MaxItems {
		return nil, domain.ErrTooManyItems
	}

	cfg := m.ResolveConfig(req)
	id := uuid.NewString()
	token, expiresAt, err := m.deps.Tokens.Issue(id)
	if err != nil {
		return nil, err
	}

	logger := m.log.With(zap.String("job_id", id))
	entry := &jobEntry{
		id:        id,
		config:    cfg,
		scheduler: NewScheduler(m.deps.Factory(cfg), logger),
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if m.activeLocked() >= m.cfg.MaxActiveJobs {
		m.mu.Unlock()
		return nil, domain.ErrTooManyJobs
	}
	m.jobs[id] = entry
	m.mu.Unlock()

	started := make(chan struct{})
	startedAt := time.Now()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(entry.done)

		err := entry.scheduler.Start(m.ctx, items, m.schedulerConfig(cfg), m.callbacks(entry, started, startedAt))
		if err != nil {
			logger.Error("Batch failed to start", zap.Error(err))
			m.markFinished(entry)
			close(started)
		}
	}()
	<-started

	if m.deps.Observer != nil {
		m.deps.Observer.JobStarted()
	}
	logger.Info("Job created", zap.Int("items", len(items)), zap.Int("concurrency", cfg.Concurrency))

	return &Job{
		ID:             id,
		Token:          token,
		TokenExpiresAt: expiresAt,
		Status:         entry.scheduler.Status(),
		Config:         cfg,
		CreatedAt:      entry.createdAt,
	}, nil
}

func (m *Manager) callbacks(e *jobEntry, started chan struct{}, startedAt time.Time) Callbacks {
	return Callbacks{
		OnStart: func() {
			m.persist(e, true)
			close(started)
		},
		OnItem: func(item domain.WorkItem) {
			if m.deps.Notifier != nil {
				m.deps.Notifier.NotifyItem(e.id, item)
			}
			if item.Status.IsTerminal() && m.deps.Observer != nil {
				m.deps.Observer.ItemFinished(item)
			}
		},
		OnProgress: func(stats domain.BatchStatistics) {
			if m.deps.Notifier != nil {
				m.deps.Notifier.NotifyProgress(e.id, stats)
			}
			m.persist(e, false)
		},
		OnComplete: func([]domain.WorkItem) {
			m.markFinished(e)
			snapshot := e.snapshot()
			m.persistSnapshot(e, snapshot, true)
			if m.deps.Notifier != nil {
				m.deps.Notifier.NotifyComplete(e.id, snapshot)
			}
			if m.deps.Observer != nil {
				m.deps.Observer.JobFinished(snapshot.State, time.Since(startedAt))
			}
		},
	}
}

func (m *Manager) markFinished(e *jobEntry) {
	now := time.Now().UTC()
	e.mu.Lock()
	if e.finishedAt == nil {
		e.finishedAt = &now
	}
	e.mu.Unlock()
}

// persist 节流保存快照，force 为 true 时不节流
func (m *Manager) persist(e *jobEntry, force bool) {
	if m.deps.Store == nil {
		return
	}
	e.mu.Lock()
	if !force && time.Since(e.lastPersist) < m.cfg.PersistEvery {
		e.mu.Unlock()
		return
	}
	e.lastPersist = time.Now()
	e.mu.Unlock()

	m.persistSnapshot(e, e.snapshot(), force)
}

// persistSnapshot 经协程池异步写入，must 为 true 时队列满也会等待
func (m *Manager) persistSnapshot(e *jobEntry, snapshot *domain.JobSnapshot, must bool) {
	if m.deps.Store == nil {
		return
	}
	task := func(ctx context.Context) {
		e.saveMu.Lock()
		defer e.saveMu.Unlock()
		if snapshot.UpdatedAt.Before(e.savedAt) {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := m.deps.Store.SaveJob(ctx, snapshot); err != nil {
			m.log.Warn("Failed to persist job snapshot",
				zap.String("job_id", snapshot.ID),
				zap.Error(err))
			return
		}
		e.savedAt = snapshot.UpdatedAt
	}

	if m.deps.Pool == nil {
		task(context.Background())
		return
	}
	if must {
		if err := m.deps.Pool.Submit(context.Background(), task); err != nil {
			task(context.Background())
		}
		return
	}
	if !m.deps.Pool.TrySubmit(task) {
		m.log.Debug("Persist queue full, skipping snapshot", zap.String("job_id", snapshot.ID))
	}
}

func (m *Manager) entry(id string) (*jobEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	return e, ok
}

// Get 获取任务快照，内存中没有时从存储读取
func (m *Manager) Get(ctx context.Context, id string) (*domain.JobSnapshot, error) {
	if e, ok := m.entry(id); ok {
		return e.snapshot(), nil
	}
	if m.deps.Store == nil {
		return nil, domain.ErrJobNotFound
	}
	snapshot, err := m.deps.Store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return snapshot, nil
}

// Status 任务处理状态
func (m *Manager) Status(id string) (ProcessingStatus, error) {
	e, ok := m.entry(id)
	if !ok {
		return ProcessingStatus{}, domain.ErrJobNotFound
	}
	return e.scheduler.Status(), nil
}

// Pause 暂停任务
func (m *Manager) Pause(id string) (ProcessingStatus, error) {
	return m.control(id, "paused", (*Scheduler).Pause)
}

// Resume 恢复任务
func (m *Manager) Resume(id string) (ProcessingStatus, error) {
	return m.control(id, "resumed", (*Scheduler).Resume)
}

// Stop 停止任务
func (m *Manager) Stop(id string) (ProcessingStatus, error) {
	return m.control(id, "stopped", (*Scheduler).Stop)
}

func (m *Manager) control(id, action string, fn func(*Scheduler) bool) (ProcessingStatus, error) {
	e, ok := m.entry(id)
	if !ok {
		return ProcessingStatus{}, domain.ErrJobNotFound
	}
	if !fn(e.scheduler) {
		return e.scheduler.Status(), domain.ErrJobNotActive
	}
	m.log.Info("Job "+action, zap.String("job_id", id))
	return e.scheduler.Status(), nil
}

// Wait 等待任务结束或 ctx 结束
func (m *Manager) Wait(ctx context.Context, id string) error {
	e, ok := m.entry(id)
	if !ok {
		return domain.ErrJobNotFound
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveJobs 未结束的任务数
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

// Prune 清理结束超过 TTL 的任务，返回内存中清理的数量
func (m *Manager) Prune(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-m.cfg.JobTTL)

	m.mu.Lock()
	removed := 0
	for id, e := range m.jobs {
		if finishedAt, done := e.finished(); done && finishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	m.mu.Unlock()

	if m.deps.Store != nil {
		n, err := m.deps.Store.PruneJobs(ctx, cutoff)
		if err != nil {
			m.log.Warn("Failed to prune stored jobs", zap.Error(err))
		} else if n > 0 {
			m.log.Info("Pruned stored jobs", zap.Int("count", n))
		}
	}
	return removed
}

// Run 定期清理过期任务，直到 ctx 结束
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Prune(ctx, now)
		}
	}
}

// Shutdown 停止所有运行中的任务并等待结束
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, e := range m.jobs {
		e.scheduler.Stop()
	}
	m.mu.RUnlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
