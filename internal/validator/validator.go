package validator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/provider"
)

// Request 单次验证请求
type Request struct {
	Key            string
	SecretKey      string
	Provider       domain.Provider
	Format         domain.RequestFormat
	CheckBalance   bool
	CustomEndpoint string
}

// Input 交给策略的验证输入
type Input struct {
	Key          string
	Secret       string
	Format       domain.RequestFormat
	Endpoint     string
	CheckBalance bool
}

func (in Input) vars() provider.TemplateVars {
	return provider.TemplateVars{Key: in.Key, Secret: in.Secret, Endpoint: in.Endpoint}
}

// Strategy 服务商验证策略
//
// 返回的 error 只表示传输层失败，协议层结果（无效、限流）通过结果状态表达。
type Strategy interface {
	Validate(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*domain.ValidationResult, error)
}

// Balance 余额查询结果
type Balance struct {
	Amount      float64
	AccountInfo map[string]any
}

// BalanceChecker 支持余额查询的策略
type BalanceChecker interface {
	CheckBalance(ctx context.Context, in Input, cfg *provider.Config, t fetch.Sender) (*Balance, error)
}

// Validator 按服务商分派到验证策略
type Validator struct {
	registry  *provider.Registry
	transport fetch.Sender
	logger    *zap.Logger

	mu         sync.RWMutex
	strategies map[domain.Provider]Strategy
	generic    Strategy
}

// New 创建验证器并注册内置策略
func New(registry *provider.Registry, transport fetch.Sender, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		registry:   registry,
		transport:  transport,
		logger:     logger,
		strategies: make(map[domain.Provider]Strategy),
		generic:    GenericStrategy{},
	}
	for p, s := range builtinStrategies() {
		v.strategies[p] = s
	}
	return v
}

// Register 注册或替换某个服务商的策略
func (v *Validator) Register(p domain.Provider, s Strategy) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.strategies[p] = s
}

// WithTransport 返回使用指定传输客户端的副本，策略表共享
func (v *Validator) WithTransport(t fetch.Sender) *Validator {
	v.mu.RLock()
	defer v.mu.RUnlock()
	strategies := make(map[domain.Provider]Strategy, len(v.strategies))
	for p, s := range v.strategies {
		strategies[p] = s
	}
	return &Validator{
		registry:   v.registry,
		transport:  t,
		logger:     v.logger,
		strategies: strategies,
		generic:    v.generic,
	}
}

// Registry 验证器使用的注册表
func (v *Validator) Registry() *provider.Registry {
	return v.registry
}

func (v *Validator) strategyFor(p domain.Provider) Strategy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if s, ok := v.strategies[p]; ok {
		return s
	}
	return v.generic
}

// Validate 验证单个密钥
//
// 未知服务商返回 provider.ErrProviderNotFound；传输层失败原样返回错误，
// 由调用方转换为错误结果或重试。其他情况都返回结果。
func (v *Validator) Validate(ctx context.Context, req Request) (*domain.ValidationResult, error) {
	cfg, err := v.registry.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.Key)
	format := req.Format
	if format == "" {
		format = cfg.DefaultFormat()
	}

	if !cfg.MatchKey(key) {
		return staticResult(cfg.ID, format, domain.StatusFormatError, MsgFormatError, "Invalid key format"), nil
	}
	if !cfg.Supports(format) {
		return staticResult(cfg.ID, format, domain.StatusUnknown,
			fmt.Sprintf(MsgUnsupported, cfg.Name, format), "Unsupported request format"), nil
	}
	if cfg.NeedsSecretKey && strings.TrimSpace(req.SecretKey) == "" {
		return staticResult(cfg.ID, format, domain.StatusInvalid,
			fmt.Sprintf(MsgSecretRequired, cfg.Name), "Secret key required"), nil
	}
	if cfg.RequiresEndpoint(format) && strings.TrimSpace(req.CustomEndpoint) == "" {
		return staticResult(cfg.ID, format, domain.StatusUnknown,
			fmt.Sprintf(MsgEndpointRequired, cfg.Name), "Custom endpoint required"), nil
	}

	in := Input{
		Key:          key,
		Secret:       strings.TrimSpace(req.SecretKey),
		Format:       format,
		Endpoint:     strings.TrimSpace(req.CustomEndpoint),
		CheckBalance: req.CheckBalance,
	}

	strategy := v.strategyFor(cfg.ID)
	start := time.Now()
	result, err := strategy.Validate(ctx, in, cfg, v.transport)
	if err != nil {
		v.logger.Debug("Validation transport failure",
			zap.String("provider", string(cfg.ID)),
			zap.String("key", domain.MaskKey(key)),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Status == domain.StatusValid && in.CheckBalance {
		if checker, ok := strategy.(BalanceChecker); ok {
			result = v.withBalance(ctx, checker, in, cfg, result)
		}
	}

	return result.WithResponseTime(time.Since(start).Milliseconds()), nil
}

// withBalance 余额查询失败不影响验证结果
func (v *Validator) withBalance(ctx context.Context, checker BalanceChecker, in Input, cfg *provider.Config, result *domain.ValidationResult) *domain.ValidationResult {
	balance, err := checker.CheckBalance(ctx, in, cfg, v.transport)
	if err != nil || balance == nil {
		v.logger.Debug("Balance check skipped",
			zap.String("provider", string(cfg.ID)),
			zap.Error(err),
		)
		return result
	}

	out := *result
	details := domain.ValidationDetails{}
	if result.Details != nil {
		details = *result.Details
	}
	amount := balance.Amount
	details.Balance = &amount
	if len(balance.AccountInfo) > 0 {
		details.AccountInfo = balance.AccountInfo
	}
	out.Details = &details
	return &out
}
