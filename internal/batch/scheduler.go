package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

// 默认调度参数
const (
	DefaultConcurrency  = 5
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultPausePoll    = 100 * time.Millisecond
	MsgRetriesExhausted = "验证失败"
)

var (
	// ErrAttemptTimeout 单次验证超过超时时间
	ErrAttemptTimeout = errors.New("validation attempt timed out")
	// errNilResult 验证函数既没有结果也没有错误
	errNilResult = errors.New("validator returned no result")
)

// ValidateFunc 验证单个条目，返回 error 表示本次尝试失败
type ValidateFunc func(ctx context.Context, item domain.WorkItem) (*domain.ValidationResult, error)

// Config 调度配置
type Config struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	PausePoll   time.Duration
	// Retryable 为 true 的分类结果也按失败重试，默认只重试错误
	Retryable func(*domain.ValidationResult) bool
}

// DefaultConfig 默认调度配置
func DefaultConfig() Config {
	return Config{
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		Timeout:     DefaultTimeout,
		PausePoll:   DefaultPausePoll,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PausePoll <= 0 {
		c.PausePoll = d.PausePoll
	}
	return c
}

// Callbacks 调度回调，均可为 nil
type Callbacks struct {
	// OnStart 状态切换为运行后、开始分派前调用
	OnStart func()
	// OnProgress 每个条目进入终态后调用，携带完整重算的统计
	OnProgress func(domain.BatchStatistics)
	// OnItem 条目状态或重试次数变化时调用
	OnItem func(domain.WorkItem)
	// OnComplete 运行结束时调用一次，按完成顺序携带终态条目
	OnComplete func([]domain.WorkItem)
}

// ProcessingStatus 调度器状态
type ProcessingStatus struct {
	State        domain.JobState `json:"state"`
	IsProcessing bool            `json:"isProcessing"`
	IsPaused     bool            `json:"isPaused"`
	CanPause     bool            `json:"canPause"`
	CanResume    bool            `json:"canResume"`
	CanStop      bool            `json:"canStop"`
}

// Scheduler 批量验证调度器
//
// 状态：Idle → Running → {Paused ⇄ Running} → {Completed | Stopped}。
// 每个实例独立持有状态，同一时间只能运行一批。
type Scheduler struct {
	validate ValidateFunc
	logger   *zap.Logger

	mu        sync.Mutex
	state     domain.JobState
	items     []domain.WorkItem
	completed []domain.WorkItem
	cancel    context.CancelFunc

	paused  atomic.Bool
	stopped atomic.Bool
}

// NewScheduler 创建调度器
func NewScheduler(validate ValidateFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		validate: validate,
		logger:   logger,
		state:    domain.JobIdle,
	}
}

// Start 运行一批条目，阻塞直到完成或被停止
//
// 运行中再次调用返回 domain.ErrAlreadyRunning，空列表返回 domain.ErrEmptyBatch。
func (s *Scheduler) Start(ctx context.Context, items []domain.WorkItem, cfg Config, cb Callbacks) error {
	if len(items) == 0 {
		return domain.ErrEmptyBatch
	}
	cfg = cfg.withDefaults()

	s.mu.Lock()
	if s.state == domain.JobRunning || s.state == domain.JobPaused {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.items = make([]domain.WorkItem, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.MaskedKey == "" {
			item.MaskedKey = domain.MaskKey(item.Key)
		}
		if item.Fingerprint == "" {
			item.Fingerprint = domain.Fingerprint(item.Key)
		}
		item.Status = domain.StatusPending
		item.RetryCount = 0
		item.Result = nil
		item.CheckTimeMs = 0
		s.items[i] = item
	}
	s.completed = make([]domain.WorkItem, 0, len(items))
	s.cancel = cancel
	s.state = domain.JobRunning
	s.paused.Store(false)
	s.stopped.Store(false)
	s.mu.Unlock()
	defer cancel()

	if cb.OnStart != nil {
		cb.OnStart()
	}

	s.logger.Info("Batch started",
		zap.Int("items", len(items)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	var wg sync.WaitGroup
	for i := range s.items {
		if !s.waitWhilePaused(runCtx, cfg.PausePoll) {
			break
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)
			s.process(runCtx, idx, cfg, cb)
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	if s.stopped.Load() {
		s.state = domain.JobStopped
	} else {
		s.state = domain.JobCompleted
	}
	s.paused.Store(false)
	s.cancel = nil
	results := make([]domain.WorkItem, len(s.completed))
	copy(results, s.completed)
	state := s.state
	s.mu.Unlock()

	s.logger.Info("Batch finished",
		zap.String("state", string(state)),
		zap.Int("completed", len(results)),
		zap.Int("total", len(items)),
	)

	if cb.OnComplete != nil {
		cb.OnComplete(results)
	}
	return nil
}

// process 处理单个条目，被停止时放弃且不记录结果
func (s *Scheduler) process(ctx context.Context, idx int, cfg Config, cb Callbacks) {
	var item domain.WorkItem
	for {
		if !s.waitWhilePaused(ctx, cfg.PausePoll) {
			return
		}
		var outcome checkOutcome
		item, outcome = s.markChecking(idx, cb)
		if outcome == checkStarted {
			break
		}
		if outcome == checkStopped {
			return
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if !s.waitWhilePaused(ctx, cfg.PausePoll) {
			return
		}

		start := time.Now()
		result, err := s.attempt(ctx, item, cfg.Timeout)
		elapsed := time.Since(start).Milliseconds()
		if ctx.Err() != nil {
			return
		}

		if err == nil && (cfg.Retryable == nil || !cfg.Retryable(result)) {
			s.finish(idx, result, elapsed, cb)
			return
		}

		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("%s: %s", result.Status, result.Message)
		}
		s.incrementRetry(idx, cb)

		if attempt >= cfg.MaxRetries {
			failed := domain.NewErrorResult(item.Provider, item.RequestFormat, MsgRetriesExhausted, lastErr)
			s.finish(idx, failed, elapsed, cb)
			return
		}

		s.logger.Debug("Retrying item",
			zap.String("item", item.ID),
			zap.String("key", item.MaskedKey),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		if !sleepCtx(ctx, cfg.RetryDelay) {
			return
		}
	}
}

// attempt 单次验证与超时竞争，验证函数不响应取消也不会阻塞调度
func (s *Scheduler) attempt(ctx context.Context, item domain.WorkItem, timeout time.Duration) (*domain.ValidationResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *domain.ValidationResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("validator panic: %v", r)}
			}
		}()
		result, err := s.validate(attemptCtx, item)
		if err == nil && result == nil {
			err = errNilResult
		}
		done <- outcome{result: result, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
		if o.err == nil {
			return o.result, nil
		}
	case <-attemptCtx.Done():
	}

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	}
	return nil, o.err
}

type checkOutcome int

const (
	checkStarted checkOutcome = iota
	checkPaused
	checkStopped
)

// markChecking 在锁内确认未暂停、未停止后才把条目置为 Checking
func (s *Scheduler) markChecking(idx int, cb Callbacks) (domain.WorkItem, checkOutcome) {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return domain.WorkItem{}, checkStopped
	}
	if s.paused.Load() {
		s.mu.Unlock()
		return domain.WorkItem{}, checkPaused
	}
	s.items[idx].Status = domain.StatusChecking
	item := s.items[idx]
	s.mu.Unlock()

	notifyItem(cb, item)
	return item, checkStarted
}

func (s *Scheduler) incrementRetry(idx int, cb Callbacks) {
	s.mu.Lock()
	s.items[idx].RetryCount++
	item := s.items[idx]
	s.mu.Unlock()

	notifyItem(cb, item)
}

// finish 记录终态，条目状态与结果状态一致，并清除密钥
func (s *Scheduler) finish(idx int, result *domain.ValidationResult, elapsed int64, cb Callbacks) {
	result = result.WithResponseTime(elapsed)

	s.mu.Lock()
	item := &s.items[idx]
	item.Result = result
	item.Status = result.Status
	item.CheckTimeMs = elapsed
	item.Redact()
	s.completed = append(s.completed, *item)
	snapshot := *item
	stats := domain.ComputeStatistics(len(s.items), s.completed)
	s.mu.Unlock()

	notifyItem(cb, snapshot)
	if cb.OnProgress != nil {
		cb.OnProgress(stats)
	}
}

func notifyItem(cb Callbacks, item domain.WorkItem) {
	if cb.OnItem == nil {
		return
	}
	item.Redact()
	cb.OnItem(item)
}

// waitWhilePaused 暂停期间轮询等待，被停止时返回 false
func (s *Scheduler) waitWhilePaused(ctx context.Context, poll time.Duration) bool {
	for s.paused.Load() {
		if !sleepCtx(ctx, poll) {
			return false
		}
	}
	return ctx.Err() == nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Pause 暂停，不再开始新的尝试
func (s *Scheduler) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.JobRunning {
		return false
	}
	s.paused.Store(true)
	s.state = domain.JobPaused
	return true
}

// Resume 恢复运行
func (s *Scheduler) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.JobPaused {
		return false
	}
	s.paused.Store(false)
	s.state = domain.JobRunning
	return true
}

// Stop 停止运行，进行中的请求被取消且不记录结果
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.JobRunning && s.state != domain.JobPaused {
		return false
	}
	s.stopped.Store(true)
	s.paused.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// Status 当前处理状态
func (s *Scheduler) Status() ProcessingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	processing := s.state == domain.JobRunning || s.state == domain.JobPaused
	paused := s.state == domain.JobPaused
	return ProcessingStatus{
		State:        s.state,
		IsProcessing: processing,
		IsPaused:     paused,
		CanPause:     processing && !paused,
		CanResume:    processing && paused,
		CanStop:      processing,
	}
}

// Snapshot 调度器某一时刻的完整视图
type Snapshot struct {
	Status     ProcessingStatus
	Items      []domain.WorkItem
	Statistics domain.BatchStatistics
}

// Snapshot 在同一把锁下读取状态、条目和统计
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.WorkItem, len(s.items))
	for i, item := range s.items {
		item.Redact()
		items[i] = item
	}
	processing := s.state == domain.JobRunning || s.state == domain.JobPaused
	paused := s.state == domain.JobPaused
	return Snapshot{
		Status: ProcessingStatus{
			State:        s.state,
			IsProcessing: processing,
			IsPaused:     paused,
			CanPause:     processing && !paused,
			CanResume:    processing && paused,
			CanStop:      processing,
		},
		Items:      items,
		Statistics: domain.ComputeStatistics(len(s.items), s.completed),
	}
}

// Statistics 当前统计
func (s *Scheduler) Statistics() domain.BatchStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ComputeStatistics(len(s.items), s.completed)
}

// Items 当前全部条目的副本（不含密钥）
func (s *Scheduler) Items() []domain.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkItem, len(s.items))
	for i, item := range s.items {
		item.Redact()
		out[i] = item
	}
	return out
}

// Results 按完成顺序的终态条目
func (s *Scheduler) Results() []domain.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkItem, len(s.completed))
	copy(out, s.completed)
	return out
}
