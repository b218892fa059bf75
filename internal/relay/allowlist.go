package relay

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// maxRedirects 与 net/http 默认的跳转上限一致
const maxRedirects = 10

// DefaultDomains 允许中转的 AI 服务商域名
var DefaultDomains = []string{
	"api.openai.com",
	"api.anthropic.com",
	"generativelanguage.googleapis.com",
	"aip.baidubce.com",
	"dashscope.aliyuncs.com",
	"ark.cn-beijing.volces.com",
	"api.moonshot.cn",
	"open.bigmodel.cn",
	"api.minimax.chat",
	"api.cohere.ai",
	"api.huggingface.co",
	"huggingface.co",
	"api.replicate.com",
	"api.together.xyz",
	"api.fireworks.ai",
	"api.groq.com",
	"api.perplexity.ai",
	"api.x.ai",
	"api.mistral.ai",
	"api.deepseek.com",
	"api.lingyi.ai",
	"api.baichuan-ai.com",
	"api.sensetime.com",
	"api.yunque.bytedance.com",
	"api.siliconflow.cn",
}

// AllowList 目标主机白名单
//
// 主机名与白名单域名完全相同，或是其子域名时放行。
type AllowList struct {
	domains map[string]struct{}
}

// NewAllowList 以默认域名加上额外域名创建白名单
func NewAllowList(extra ...string) *AllowList {
	a := &AllowList{domains: make(map[string]struct{}, len(DefaultDomains)+len(extra))}
	for _, d := range DefaultDomains {
		a.add(d)
	}
	for _, d := range extra {
		a.add(d)
	}
	return a
}

func (a *AllowList) add(domain string) {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain != "" {
		a.domains[domain] = struct{}{}
	}
}

// Allowed 主机名是否在白名单中
func (a *AllowList) Allowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for {
		if _, ok := a.domains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

// Domains 白名单域名（排序后）
func (a *AllowList) Domains() []string {
	out := make([]string, 0, len(a.domains))
	for d := range a.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// CheckRedirect 用作 http.Client 的跳转策略，每一跳都重新校验白名单
func (a *AllowList) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: redirect scheme %q", ErrHostNotAllowed, req.URL.Scheme)
	}
	if !a.Allowed(req.URL.Hostname()) {
		return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Hostname())
	}
	return nil
}
