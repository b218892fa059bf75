package provider

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

var (
	// ErrProviderNotFound 未知服务商
	ErrProviderNotFound = errors.New("provider not found")
	// ErrFormatNotSupported 服务商不支持该请求格式
	ErrFormatNotSupported = errors.New("request format not supported")
	// ErrEndpointRequired 模板需要自定义端点但未提供
	ErrEndpointRequired = errors.New("custom endpoint required")
)

// Category 服务商分类
type Category string

const (
	CategoryCore          Category = "core"
	CategoryInternational Category = "international"
	CategoryPlatform      Category = "platform"
	CategoryDomestic      Category = "domestic"
	CategoryOther         Category = "other"
)

var categoryOrder = map[Category]int{
	CategoryCore:          0,
	CategoryInternational: 1,
	CategoryPlatform:      2,
	CategoryDomestic:      3,
	CategoryOther:         4,
}

// 模板占位符
const (
	placeholderKey      = "{key}"
	placeholderSecret   = "{secret}"
	placeholderEndpoint = "{endpoint}"
)

// Variant 某种请求格式下的请求模板
type Variant struct {
	Method   string
	Endpoint string
	Headers  map[string]string
	Body     any
}

// Config 服务商配置，启动时构建一次，之后只读
type Config struct {
	ID             domain.Provider
	Name           string
	KeyExample     string
	KeyPattern     *regexp.Regexp
	Category       Category
	NeedsSecretKey bool
	Models         []string
	Variants       map[domain.RequestFormat]Variant
}

// TemplateVars 模板变量
type TemplateVars struct {
	Key      string
	Secret   string
	Endpoint string
}

// RenderedRequest 渲染后的请求
type RenderedRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// MatchKey 检查密钥格式
func (c *Config) MatchKey(key string) bool {
	return c.KeyPattern != nil && c.KeyPattern.MatchString(key)
}

// Supports 是否支持指定请求格式
func (c *Config) Supports(format domain.RequestFormat) bool {
	_, ok := c.Variants[format]
	return ok
}

// Formats 支持的请求格式，原生格式在前
func (c *Config) Formats() []domain.RequestFormat {
	formats := make([]domain.RequestFormat, 0, 2)
	for _, f := range []domain.RequestFormat{domain.FormatNative, domain.FormatOpenAICompatible} {
		if c.Supports(f) {
			formats = append(formats, f)
		}
	}
	return formats
}

// DefaultFormat 未指定格式时使用的请求格式
func (c *Config) DefaultFormat() domain.RequestFormat {
	if formats := c.Formats(); len(formats) > 0 {
		return formats[0]
	}
	return domain.FormatNative
}

// RequiresEndpoint 该格式的模板是否依赖自定义端点
func (c *Config) RequiresEndpoint(format domain.RequestFormat) bool {
	v, ok := c.Variants[format]
	return ok && strings.Contains(v.Endpoint, placeholderEndpoint)
}

// Render 用模板变量渲染请求
func (c *Config) Render(format domain.RequestFormat, vars TemplateVars) (*RenderedRequest, error) {
	v, ok := c.Variants[format]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", c.ID, format, ErrFormatNotSupported)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(vars.Endpoint), "/")
	if strings.Contains(v.Endpoint, placeholderEndpoint) && endpoint == "" {
		return nil, fmt.Errorf("%s: %w", c.ID, ErrEndpointRequired)
	}

	// URL 中的密钥需要转义，端点原样替换
	target := strings.NewReplacer(
		placeholderKey, url.QueryEscape(vars.Key),
		placeholderSecret, url.QueryEscape(vars.Secret),
		placeholderEndpoint, endpoint,
	).Replace(v.Endpoint)

	headerReplacer := strings.NewReplacer(
		placeholderKey, vars.Key,
		placeholderSecret, vars.Secret,
	)
	headers := make(map[string]string, len(v.Headers))
	for name, value := range v.Headers {
		headers[name] = headerReplacer.Replace(value)
	}

	method := v.Method
	if method == "" {
		method = "GET"
	}

	return &RenderedRequest{
		Method:  method,
		URL:     target,
		Headers: headers,
		Body:    v.Body,
	}, nil
}
