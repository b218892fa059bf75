package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/batch"
	"github.com/chatUnique/keyguard-pro/internal/domain"
)

// 批量参数上限
const (
	MaxConcurrency  = 50
	MaxRetriesLimit = 10
	MaxRetryDelayMs = 60_000
	MaxTimeoutMs    = 300_000
)

var ErrInvalidBatchConfig = errors.New("invalid batch config")

// BatchItemInput 结构化的批量条目
type BatchItemInput struct {
	Provider      string `json:"provider"`
	Key           string `json:"key"`
	SecretKey     string `json:"secretKey"`
	CustomURL     string `json:"customUrl"`
	RequestFormat string `json:"requestFormat"`
}

// CreateBatchInput 创建批量任务的输入，Input 与 Items 二选一
type CreateBatchInput struct {
	Input         string
	Items         []BatchItemInput
	Concurrency   int
	MaxRetries    *int
	RetryDelayMs  int64
	TimeoutMs     int64
	CheckBalance  bool
	RequestFormat string
}

// BatchService 批量检测任务
type BatchService struct {
	jobs   *batch.Manager
	logger *zap.Logger
}

// NewBatchService 创建批量检测服务
func NewBatchService(jobs *batch.Manager, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{jobs: jobs, logger: logger}
}

// Parse 预览批量输入
func (s *BatchService) Parse(text string) domain.BatchInputReport {
	return domain.ValidateBatchInput(text)
}

// Create 解析输入并启动任务
func (s *BatchService) Create(in *CreateBatchInput) (*batch.Job, error) {
	cfg, err := s.config(in)
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if len(in.Items) > 0 {
		items, err = buildItems(in.Items)
		if err != nil {
			return nil, err
		}
	} else {
		items = domain.ParseBatchInput(in.Input)
	}

	// 输入中的密钥已复制到条目，调度器在终态时清空条目副本
	in.Input = ""
	in.Items = nil

	job, err := s.jobs.Create(items, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Batch created",
		zap.String("job_id", job.ID),
		zap.Int("items", len(items)),
	)
	return job, nil
}

func (s *BatchService) config(in *CreateBatchInput) (domain.BatchConfig, error) {
	defaults := s.jobs.Config().Defaults
	cfg := domain.BatchConfig{
		Concurrency:   in.Concurrency,
		MaxRetries:    defaults.MaxRetries,
		RetryDelayMs:  in.RetryDelayMs,
		TimeoutMs:     in.TimeoutMs,
		CheckBalance:  in.CheckBalance,
		RequestFormat: domain.RequestFormat(strings.TrimSpace(in.RequestFormat)),
	}
	if in.MaxRetries != nil {
		cfg.MaxRetries = *in.MaxRetries
	}

	switch {
	case cfg.Concurrency < 0 || cfg.Concurrency > MaxConcurrency:
		return cfg, fmt.Errorf("%w: concurrency must be within 1..%d", ErrInvalidBatchConfig, MaxConcurrency)
	case cfg.MaxRetries < 0 || cfg.MaxRetries > MaxRetriesLimit:
		return cfg, fmt.Errorf("%w: maxRetries must be within 0..%d", ErrInvalidBatchConfig, MaxRetriesLimit)
	case cfg.RetryDelayMs < 0 || cfg.RetryDelayMs > MaxRetryDelayMs:
		return cfg, fmt.Errorf("%w: retryDelay must be within 0..%d", ErrInvalidBatchConfig, MaxRetryDelayMs)
	case cfg.TimeoutMs < 0 || cfg.TimeoutMs > MaxTimeoutMs:
		return cfg, fmt.Errorf("%w: timeout must be within 0..%d", ErrInvalidBatchConfig, MaxTimeoutMs)
	case cfg.RequestFormat != "" && !cfg.RequestFormat.IsValid():
		return cfg, ErrInvalidFormat
	}
	return cfg, nil
}

func buildItems(inputs []BatchItemInput) ([]domain.WorkItem, error) {
	items := make([]domain.WorkItem, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Key) == "" {
			continue
		}
		format := domain.RequestFormat(strings.TrimSpace(in.RequestFormat))
		if format != "" && !format.IsValid() {
			return nil, ErrInvalidFormat
		}

		item := domain.NewWorkItem(domain.ParseProvider(in.Provider), in.Key)
		item.SecretKey = strings.TrimSpace(in.SecretKey)
		item.CustomEndpoint = strings.TrimSpace(in.CustomURL)
		item.RequestFormat = format
		items = append(items, item)
	}
	return items, nil
}

// Get 任务快照
func (s *BatchService) Get(ctx context.Context, id string) (*domain.JobSnapshot, error) {
	return s.jobs.Get(ctx, id)
}

// Pause 暂停任务
func (s *BatchService) Pause(id string) (batch.ProcessingStatus, error) {
	return s.jobs.Pause(id)
}

// Resume 恢复任务
func (s *BatchService) Resume(id string) (batch.ProcessingStatus, error) {
	return s.jobs.Resume(id)
}

// Stop 停止任务
func (s *BatchService) Stop(id string) (batch.ProcessingStatus, error) {
	return s.jobs.Stop(id)
}
