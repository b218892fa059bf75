package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/batch"
	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/provider"
	"github.com/chatUnique/keyguard-pro/internal/validator"
)

var (
	ErrKeyRequired     = errors.New("api key required")
	ErrInvalidFormat   = errors.New("invalid request format")
	ErrUnknownProvider = errors.New("unknown provider")
)

// ClientFactory 构建出站客户端
type ClientFactory interface {
	NewClient(ctx context.Context) *fetch.Client
}

// ValidationRecorder 记录单次验证指标
type ValidationRecorder interface {
	RecordValidation(p domain.Provider, status domain.KeyStatus, duration time.Duration)
}

// KeyService 单个密钥验证，同时为批量任务提供验证函数
type KeyService struct {
	validator *validator.Validator
	clients   ClientFactory
	recorder  ValidationRecorder
	logger    *zap.Logger
}

// NewKeyService 创建密钥验证服务，recorder 可为 nil
func NewKeyService(v *validator.Validator, clients ClientFactory, recorder ValidationRecorder, logger *zap.Logger) *KeyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyService{
		validator: v,
		clients:   clients,
		recorder:  recorder,
		logger:    logger,
	}
}

// Providers 可用服务商列表
func (s *KeyService) Providers() []provider.Info {
	return s.validator.Registry().Infos()
}

// ValidateKeyInput 单个密钥验证输入
type ValidateKeyInput struct {
	Key            string
	SecretKey      string
	Provider       string
	RequestFormat  string
	CheckBalance   bool
	CustomEndpoint string
}

// Validate 验证单个密钥，交给验证器后立即清空 in 中的密钥
//
// 传输层失败转换为错误状态的结果，不作为 error 返回。
func (s *KeyService) Validate(ctx context.Context, in *ValidateKeyInput) (*domain.ValidationResult, error) {
	defer func() {
		in.Key = ""
		in.SecretKey = ""
	}()

	if strings.TrimSpace(in.Key) == "" {
		return nil, ErrKeyRequired
	}
	p, err := s.resolveProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	format := domain.RequestFormat(strings.TrimSpace(in.RequestFormat))
	if format != "" && !format.IsValid() {
		return nil, ErrInvalidFormat
	}

	client := s.clients.NewClient(ctx)
	start := time.Now()
	result, err := s.validator.WithTransport(client).Validate(ctx, validator.Request{
		Key:            in.Key,
		SecretKey:      in.SecretKey,
		Provider:       p,
		Format:         format,
		CheckBalance:   in.CheckBalance,
		CustomEndpoint: in.CustomEndpoint,
	})
	if errors.Is(err, provider.ErrProviderNotFound) {
		return nil, ErrUnknownProvider
	}
	if err != nil {
		s.logger.Info("Key validation failed",
			zap.String("provider", string(p)),
			zap.String("path", string(client.Path())),
			zap.Error(err),
		)
		result = domain.NewErrorResult(p, format, validator.MsgUnknown, err)
	}

	if s.recorder != nil {
		s.recorder.RecordValidation(p, result.Status, time.Since(start))
	}
	return result, nil
}

// resolveProvider 空值默认 openai，别名按 ParseProvider 解析，其他未知名称拒绝
func (s *KeyService) resolveProvider(name string) (domain.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ProviderOpenAI, nil
	}
	p := domain.ParseProvider(name)
	if p == domain.ProviderOpenAI && !strings.EqualFold(name, string(domain.ProviderOpenAI)) {
		return "", ErrUnknownProvider
	}
	if !s.validator.Registry().Has(p) {
		return "", ErrUnknownProvider
	}
	return p, nil
}

// BatchValidator 实现 batch.ValidatorFactory
//
// 每个任务在第一次尝试时确定一次出站路径，之后的条目共用同一客户端。
func (s *KeyService) BatchValidator(cfg domain.BatchConfig) batch.ValidateFunc {
	var (
		once sync.Once
		v    *validator.Validator
	)
	return func(ctx context.Context, item domain.WorkItem) (*domain.ValidationResult, error) {
		once.Do(func() {
			v = s.validator.WithTransport(s.clients.NewClient(ctx))
		})

		format := item.RequestFormat
		if format == "" {
			format = cfg.RequestFormat
		}
		return v.Validate(ctx, validator.Request{
			Key:            item.Key,
			SecretKey:      item.SecretKey,
			Provider:       item.Provider,
			Format:         format,
			CheckBalance:   cfg.CheckBalance,
			CustomEndpoint: item.CustomEndpoint,
		})
	}
}
