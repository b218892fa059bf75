package provider

import (
	"fmt"
	"sort"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

// Registry 服务商配置注册表，构建后只读，可并发访问
type Registry struct {
	configs map[domain.Provider]*Config
	ordered []*Config
}

// Info 对外展示的服务商信息（不包含密钥正则）
type Info struct {
	ID             domain.Provider        `json:"id"`
	Name           string                 `json:"name"`
	KeyExample     string                 `json:"keyExample"`
	Category       Category               `json:"category"`
	NeedsSecretKey bool                   `json:"needsSecretKey"`
	Formats        []domain.RequestFormat `json:"formats"`
	Models         []string               `json:"models,omitempty"`
}

// NewRegistry 使用内置配置表创建注册表
func NewRegistry() *Registry {
	return newRegistry(defaultConfigs())
}

func newRegistry(configs []*Config) *Registry {
	r := &Registry{
		configs: make(map[domain.Provider]*Config, len(configs)),
		ordered: make([]*Config, 0, len(configs)),
	}
	for _, c := range configs {
		if _, exists := r.configs[c.ID]; exists {
			panic(fmt.Sprintf("provider %s registered twice", c.ID))
		}
		r.configs[c.ID] = c
		r.ordered = append(r.ordered, c)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if categoryOrder[a.Category] != categoryOrder[b.Category] {
			return categoryOrder[a.Category] < categoryOrder[b.Category]
		}
		return a.ID < b.ID
	})
	return r
}

// Lookup 查找服务商配置
func (r *Registry) Lookup(p domain.Provider) (*Config, error) {
	c, ok := r.configs[p]
	if !ok {
		return nil, fmt.Errorf("%q: %w", p, ErrProviderNotFound)
	}
	return c, nil
}

// Has 是否注册了该服务商
func (r *Registry) Has(p domain.Provider) bool {
	_, ok := r.configs[p]
	return ok
}

// List 按分类和标识排序的全部配置
func (r *Registry) List() []*Config {
	out := make([]*Config, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Infos 对外展示的服务商列表
func (r *Registry) Infos() []Info {
	infos := make([]Info, 0, len(r.ordered))
	for _, c := range r.ordered {
		infos = append(infos, Info{
			ID:             c.ID,
			Name:           c.Name,
			KeyExample:     c.KeyExample,
			Category:       c.Category,
			NeedsSecretKey: c.NeedsSecretKey,
			Formats:        c.Formats(),
			Models:         c.Models,
		})
	}
	return infos
}

// Len 注册的服务商数量
func (r *Registry) Len() int {
	return len(r.configs)
}
