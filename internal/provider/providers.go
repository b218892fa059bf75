package provider

import (
	"net/http"
	"regexp"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

const (
	native = domain.FormatNative
	compat = domain.FormatOpenAICompatible
)

func bearerHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer {key}",
		"Content-Type":  "application/json",
	}
}

func bearerGET(endpoint string) Variant {
	return Variant{Method: http.MethodGet, Endpoint: endpoint, Headers: bearerHeaders()}
}

func bearerPOST(endpoint string, body any) Variant {
	return Variant{Method: http.MethodPost, Endpoint: endpoint, Headers: bearerHeaders(), Body: body}
}

// chatProbe 最小化的对话请求体，只消耗 1 个 token
func chatProbe(model string) map[string]any {
	return map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "Hi"}},
		"max_tokens": 1,
	}
}

func both(v Variant) map[domain.RequestFormat]Variant {
	return map[domain.RequestFormat]Variant{native: v, compat: v}
}

func only(format domain.RequestFormat, v Variant) map[domain.RequestFormat]Variant {
	return map[domain.RequestFormat]Variant{format: v}
}

// defaultConfigs 内置服务商配置表，新增服务商只需在此添加一项
func defaultConfigs() []*Config {
	re := regexp.MustCompile
	genericKey := re(`^[a-zA-Z0-9]{32,}$`)
	genericExample := "1234567890abcdef..."

	return []*Config{
		// ========== 核心服务商 ==========
		{
			ID:         domain.ProviderOpenAI,
			Name:       "OpenAI",
			KeyExample: "sk-abc123def456ghi789...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{48}$`),
			Category:   CategoryCore,
			Models:     []string{"gpt-4", "gpt-4-1106-preview", "gpt-3.5-turbo", "gpt-3.5-turbo-16k"},
			Variants:   only(native, bearerGET("https://api.openai.com/v1/models")),
		},
		{
			ID:         domain.ProviderAnthropic,
			Name:       "Anthropic (Claude)",
			KeyExample: "sk-ant-api03-abc123...",
			KeyPattern: re(`^sk-ant-[a-zA-Z0-9\-_]{95}$`),
			Category:   CategoryCore,
			Models:     []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
			Variants: only(native, Variant{
				Method:   http.MethodPost,
				Endpoint: "https://api.anthropic.com/v1/messages",
				Headers: map[string]string{
					"x-api-key":         "{key}",
					"anthropic-version": "2023-06-01",
					"content-type":      "application/json",
				},
				Body: map[string]any{
					"model":      "claude-3-sonnet-20240229",
					"max_tokens": 1,
					"messages":   []map[string]string{{"role": "user", "content": "test"}},
				},
			}),
		},
		{
			ID:         domain.ProviderGoogle,
			Name:       "Google AI (Gemini)",
			KeyExample: "AIzaSyAbc123Def456...",
			KeyPattern: re(`^AIza[a-zA-Z0-9\-_]{35}$`),
			Category:   CategoryCore,
			Models:     []string{"gemini-pro", "gemini-pro-vision"},
			Variants: only(native, Variant{
				Method:   http.MethodGet,
				Endpoint: "https://generativelanguage.googleapis.com/v1/models?key={key}",
				Headers:  map[string]string{},
			}),
		},
		{
			ID:         domain.ProviderAzure,
			Name:       "Azure OpenAI",
			KeyExample: genericExample,
			KeyPattern: re(`^[a-zA-Z0-9]{32}$`),
			Category:   CategoryCore,
			Models:     []string{"gpt-4", "gpt-35-turbo"},
			Variants: only(compat, Variant{
				Method:   http.MethodGet,
				Endpoint: "{endpoint}/openai/models?api-version=2024-02-01",
				Headers: map[string]string{
					"api-key":      "{key}",
					"Content-Type": "application/json",
				},
			}),
		},
		{
			ID:         domain.ProviderCohere,
			Name:       "Cohere",
			KeyExample: "abc123def456ghi789...",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{40,}$`),
			Category:   CategoryCore,
			Models:     []string{"command", "command-light"},
			Variants: map[domain.RequestFormat]Variant{
				native: bearerGET("https://api.cohere.ai/v1/models"),
				compat: bearerGET("https://api.cohere.ai/compatibility/v1/models"),
			},
		},
		{
			ID:         domain.ProviderHuggingFace,
			Name:       "Hugging Face",
			KeyExample: "hf_abc123def456...",
			KeyPattern: re(`^hf_[a-zA-Z0-9]{34,}$`),
			Category:   CategoryCore,
			Variants:   only(native, bearerGET("https://huggingface.co/api/whoami-v2")),
		},
		{
			ID:             domain.ProviderBaidu,
			Name:           "百度文心一言",
			KeyExample:     "abc123def456ghi789jkl012",
			KeyPattern:     re(`^[a-zA-Z0-9]{24}$`),
			Category:       CategoryCore,
			NeedsSecretKey: true,
			Models:         []string{"ernie-bot", "ernie-bot-turbo", "ernie-bot-4"},
			Variants: both(Variant{
				Method:   http.MethodPost,
				Endpoint: "https://aip.baidubce.com/oauth/2.0/token?grant_type=client_credentials&client_id={key}&client_secret={secret}",
				Headers:  map[string]string{"Content-Type": "application/json"},
			}),
		},
		{
			ID:         domain.ProviderQwen,
			Name:       "阿里通义千问",
			KeyExample: "sk-abc123def456...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{48}$`),
			Category:   CategoryCore,
			Models:     []string{"qwen-turbo", "qwen-plus", "qwen-max", "qwen-max-longcontext"},
			Variants: map[domain.RequestFormat]Variant{
				native: bearerPOST("https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation", map[string]any{
					"model":      "qwen-turbo",
					"input":      map[string]any{"messages": []map[string]string{{"role": "user", "content": "Hi"}}},
					"parameters": map[string]any{"max_tokens": 1},
				}),
				compat: bearerGET("https://dashscope.aliyuncs.com/compatible-mode/v1/models"),
			},
		},
		{
			ID:         domain.ProviderDoubao,
			Name:       "字节跳动豆包",
			KeyExample: "your-doubao-api-key",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{32,}$`),
			Category:   CategoryCore,
			Models:     []string{"doubao-lite", "doubao-pro"},
			Variants:   both(bearerGET("https://ark.cn-beijing.volces.com/api/v3/models")),
		},
		{
			ID:         domain.ProviderMoonshot,
			Name:       "Moonshot AI (Kimi)",
			KeyExample: "sk-abc123def456...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{48}$`),
			Category:   CategoryCore,
			Models:     []string{"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k"},
			Variants:   only(compat, bearerGET("https://api.moonshot.cn/v1/models")),
		},
		{
			ID:         domain.ProviderZhipu,
			Name:       "智谱AI (GLM)",
			KeyExample: "your-zhipu-api-key",
			KeyPattern: re(`^[a-zA-Z0-9\-_\.]{32,}$`),
			Category:   CategoryCore,
			Models:     []string{"glm-4", "glm-4v", "glm-3-turbo"},
			Variants:   both(bearerGET("https://open.bigmodel.cn/api/paas/v4/models")),
		},
		{
			ID:         domain.ProviderMinimax,
			Name:       "MiniMax",
			KeyExample: "your-minimax-api-key",
			KeyPattern: re(`^[a-zA-Z0-9]{32,}$`),
			Category:   CategoryCore,
			Models:     []string{"abab6-chat", "abab5.5-chat"},
			Variants: map[domain.RequestFormat]Variant{
				native: bearerPOST("https://api.minimax.chat/v1/text/chatcompletion_v2", chatProbe("abab6-chat")),
				compat: bearerPOST("https://api.minimax.chat/v1/chat/completions", chatProbe("abab6-chat")),
			},
		},
		{
			ID:         domain.ProviderCustom,
			Name:       "自定义端点",
			KeyExample: "your-custom-api-key",
			KeyPattern: re(`^.+$`),
			Category:   CategoryCore,
			Variants:   both(bearerGET("{endpoint}")),
		},

		// ========== 国际服务商 ==========
		{
			ID:         domain.ProviderReplicate,
			Name:       "Replicate",
			KeyExample: "r8_1234567890abcdef...",
			KeyPattern: re(`^r8_[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants: only(native, Variant{
				Method:   http.MethodGet,
				Endpoint: "https://api.replicate.com/v1/models",
				Headers: map[string]string{
					"Authorization": "Token {key}",
					"Content-Type":  "application/json",
				},
			}),
		},
		{
			ID:         domain.ProviderTogether,
			Name:       "Together AI",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryInternational,
			Variants:   only(compat, bearerGET("https://api.together.xyz/v1/models")),
		},
		{
			ID:         domain.ProviderFireworks,
			Name:       "Fireworks AI",
			KeyExample: "fw_1234567890abcdef...",
			KeyPattern: re(`^fw_[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants:   only(compat, bearerGET("https://api.fireworks.ai/inference/v1/models")),
		},
		{
			ID:         domain.ProviderGroq,
			Name:       "Groq",
			KeyExample: "gsk_1234567890abcdef...",
			KeyPattern: re(`^gsk_[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants:   only(compat, bearerGET("https://api.groq.com/openai/v1/models")),
		},
		{
			ID:         domain.ProviderPerplexity,
			Name:       "Perplexity",
			KeyExample: "pplx-1234567890abcdef...",
			KeyPattern: re(`^pplx-[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Models:     []string{"sonar", "sonar-pro"},
			Variants:   only(compat, bearerPOST("https://api.perplexity.ai/chat/completions", chatProbe("sonar"))),
		},
		{
			ID:         domain.ProviderXAI,
			Name:       "xAI (Grok)",
			KeyExample: "xai-1234567890abcdef...",
			KeyPattern: re(`^xai-[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants:   only(compat, bearerGET("https://api.x.ai/v1/models")),
		},
		{
			ID:         domain.ProviderMistral,
			Name:       "Mistral AI",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryInternational,
			Variants:   only(compat, bearerGET("https://api.mistral.ai/v1/models")),
		},
		{
			ID:         domain.ProviderStability,
			Name:       "Stability AI",
			KeyExample: "sk-1234567890abcdef...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants:   only(native, bearerGET("https://api.stability.ai/v1/user/account")),
		},
		{
			ID:         domain.ProviderRunway,
			Name:       "Runway ML",
			KeyExample: "rw_1234567890abcdef...",
			KeyPattern: re(`^rw_[a-zA-Z0-9]{32,}$`),
			Category:   CategoryInternational,
			Variants:   only(native, bearerGET("https://api.runwayml.com/v1/models")),
		},

		// ========== 主流平台 ==========
		{
			ID:         domain.ProviderOllama,
			Name:       "Ollama",
			KeyExample: "ollama-1234567890abcdef...",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{0,}$`),
			Category:   CategoryPlatform,
			Variants:   only(compat, bearerGET("http://localhost:11434/api/tags")),
		},
		{
			ID:         domain.ProviderMeta,
			Name:       "Meta AI",
			KeyExample: "meta_1234567890abcdef...",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{32,}$`),
			Category:   CategoryPlatform,
			Variants:   only(native, bearerGET("https://api.meta.ai/v1/models")),
		},
		{
			ID:         domain.ProviderCoze,
			Name:       "Coze",
			KeyExample: "pat_1234567890abcdef...",
			KeyPattern: re(`^pat_[a-zA-Z0-9]{32,}$`),
			Category:   CategoryPlatform,
			Variants:   only(native, bearerGET("https://api.coze.com/v1/bots")),
		},
		{
			ID:         domain.ProviderGitHubCopilot,
			Name:       "GitHub Copilot",
			KeyExample: "ghp_1234567890abcdef...",
			KeyPattern: re(`^ghp_[a-zA-Z0-9]{36}$`),
			Category:   CategoryPlatform,
			Variants: only(native, Variant{
				Method:   http.MethodGet,
				Endpoint: "https://api.github.com/user",
				Headers: map[string]string{
					"Authorization": "Bearer {key}",
					"Accept":        "application/vnd.github+json",
				},
			}),
		},

		// ========== 国内服务商 ==========
		{
			ID:         domain.ProviderDeepSeek,
			Name:       "DeepSeek",
			KeyExample: "sk-1234567890abcdef...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{32,}$`),
			Category:   CategoryDomestic,
			Models:     []string{"deepseek-chat", "deepseek-reasoner"},
			Variants:   only(compat, bearerGET("https://api.deepseek.com/models")),
		},
		{
			ID:         domain.ProviderOneAI,
			Name:       "零一万物 (01.AI)",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(compat, bearerGET("https://api.01.ai/v1/models")),
		},
		{
			ID:         domain.ProviderTencent,
			Name:       "腾讯混元",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerGET("https://hunyuan.tencentcloudapi.com")),
		},
		{
			ID:         domain.ProviderIflytek,
			Name:       "科大讯飞星火",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerPOST("https://spark-api.xf-yun.com/v1/chat/completions", chatProbe("lite"))),
		},
		{
			ID:         domain.ProviderSensetime,
			Name:       "商汤日日新",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerPOST("https://api.sensetime.com/v1/chat/completions", chatProbe("SenseChat"))),
		},
		{
			ID:         domain.ProviderBytedance,
			Name:       "字节云雀",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerGET("https://ark.cn-beijing.volces.com/api/v3/models")),
		},
		{
			ID:         domain.ProviderLingyi,
			Name:       "零一万物",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerGET("https://api.lingyiwanwu.com/v1/models")),
		},
		{
			ID:         domain.ProviderBaichuan,
			Name:       "百川智能",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerGET("https://api.baichuan-ai.com/v1/models")),
		},
		{
			ID:         domain.ProviderKunlun,
			Name:       "昆仑万维",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerPOST("https://api.kunlun.com/v1/chat/completions", chatProbe("skywork"))),
		},
		{
			ID:         domain.ProviderAlibabaCloud,
			Name:       "阿里云百炼",
			KeyExample: "sk-1234567890abcdef...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{32,}$`),
			Category:   CategoryDomestic,
			Variants:   only(compat, bearerGET("https://dashscope.aliyuncs.com/compatible-mode/v1/models")),
		},
		{
			ID:         domain.ProviderHuawei,
			Name:       "华为盘古",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryDomestic,
			Variants:   only(native, bearerGET("https://api.huaweicloud.com/v1/pangu")),
		},
		{
			ID:         domain.ProviderSiliconFlow,
			Name:       "硅基流动",
			KeyExample: "sk-1234567890abcdef...",
			KeyPattern: re(`^sk-[a-zA-Z0-9]{48,}$`),
			Category:   CategoryDomestic,
			Variants:   only(compat, bearerGET("https://api.siliconflow.cn/v1/models")),
		},

		// ========== 其他服务商 ==========
		{
			ID:         domain.ProviderCline,
			Name:       "Cline",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryOther,
			Variants:   only(native, bearerGET("https://api.cline.com/v1/models")),
		},
		{
			ID:         domain.ProviderHunyuan,
			Name:       "腾讯混元",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryOther,
			Variants:   only(native, bearerGET("https://hunyuan.tencentcloudapi.com")),
		},
		{
			ID:         domain.ProviderYuanbao,
			Name:       "字节元宝",
			KeyExample: genericExample,
			KeyPattern: genericKey,
			Category:   CategoryOther,
			Variants:   only(native, bearerGET("https://api.yuanbao.com/v1/models")),
		},
		{
			ID:         domain.ProviderVolcengine,
			Name:       "火山引擎 (Volcengine)",
			KeyExample: "volc-1234567890abcdef...",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{32,}$`),
			Category:   CategoryOther,
			Models:     []string{"doubao-lite", "doubao-pro"},
			Variants:   both(bearerGET("https://ark.cn-beijing.volces.com/api/v3/models")),
		},
		{
			ID:         domain.ProviderMidjourney,
			Name:       "Midjourney",
			KeyExample: "mj-1234567890abcdef...",
			KeyPattern: re(`^[a-zA-Z0-9\-_]{32,}$`),
			Category:   CategoryOther,
			Variants:   only(native, bearerGET("https://api.midjourney.com/v1/imagine")),
		},
	}
}
