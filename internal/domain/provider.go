package domain

import "strings"

// Provider AI 服务提供商标识
type Provider string

// 核心服务商
const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderGoogle      Provider = "google"
	ProviderAzure       Provider = "azure"
	ProviderCohere      Provider = "cohere"
	ProviderHuggingFace Provider = "huggingface"
	ProviderBaidu       Provider = "baidu"
	ProviderQwen        Provider = "qwen"
	ProviderDoubao      Provider = "doubao"
	ProviderMoonshot    Provider = "moonshot"
	ProviderZhipu       Provider = "zhipu"
	ProviderMinimax     Provider = "minimax"
	ProviderCustom      Provider = "custom"
)

// 国际服务商
const (
	ProviderReplicate  Provider = "replicate"
	ProviderTogether   Provider = "together"
	ProviderFireworks  Provider = "fireworks"
	ProviderGroq       Provider = "groq"
	ProviderPerplexity Provider = "perplexity"
	ProviderXAI        Provider = "xai"
	ProviderMistral    Provider = "mistral"
	ProviderStability  Provider = "stability"
	ProviderRunway     Provider = "runway"
)

// 主流平台
const (
	ProviderOllama        Provider = "ollama"
	ProviderMeta          Provider = "meta"
	ProviderCoze          Provider = "coze"
	ProviderGitHubCopilot Provider = "github_copilot"
)

// 国内服务商
const (
	ProviderDeepSeek     Provider = "deepseek"
	ProviderOneAI        Provider = "01ai"
	ProviderTencent      Provider = "tencent"
	ProviderIflytek      Provider = "iflytek"
	ProviderSensetime    Provider = "sensetime"
	ProviderBytedance    Provider = "bytedance"
	ProviderLingyi       Provider = "lingyi"
	ProviderBaichuan     Provider = "baichuan"
	ProviderKunlun       Provider = "kunlun"
	ProviderAlibabaCloud Provider = "alibaba_cloud"
	ProviderHuawei       Provider = "huawei"
	ProviderSiliconFlow  Provider = "siliconflow"
)

// 其他服务商
const (
	ProviderCline      Provider = "cline"
	ProviderHunyuan    Provider = "hunyuan"
	ProviderYuanbao    Provider = "yuanbao"
	ProviderVolcengine Provider = "volcengine"
	ProviderMidjourney Provider = "midjourney"
)

// AllProviders 所有已知服务商标识
var AllProviders = []Provider{
	ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderAzure, ProviderCohere,
	ProviderHuggingFace, ProviderBaidu, ProviderQwen, ProviderDoubao, ProviderMoonshot,
	ProviderZhipu, ProviderMinimax, ProviderCustom,
	ProviderReplicate, ProviderTogether, ProviderFireworks, ProviderGroq, ProviderPerplexity,
	ProviderXAI, ProviderMistral, ProviderStability, ProviderRunway,
	ProviderOllama, ProviderMeta, ProviderCoze, ProviderGitHubCopilot,
	ProviderDeepSeek, ProviderOneAI, ProviderTencent, ProviderIflytek, ProviderSensetime,
	ProviderBytedance, ProviderLingyi, ProviderBaichuan, ProviderKunlun, ProviderAlibabaCloud,
	ProviderHuawei, ProviderSiliconFlow,
	ProviderCline, ProviderHunyuan, ProviderYuanbao, ProviderVolcengine, ProviderMidjourney,
}

// providerAliases 批量输入中常见的服务商别名
var providerAliases = map[string]Provider{
	"claude": ProviderAnthropic,
	"gemini": ProviderGoogle,
	"wenxin": ProviderBaidu,
	"tongyi": ProviderQwen,
	"kimi":   ProviderMoonshot,
	"glm":    ProviderZhipu,
	"hf":     ProviderHuggingFace,
}

var knownProviders = func() map[Provider]bool {
	m := make(map[Provider]bool, len(AllProviders))
	for _, p := range AllProviders {
		m[p] = true
	}
	return m
}()

// IsKnown 判断是否为已知服务商
func (p Provider) IsKnown() bool {
	return knownProviders[p]
}

// ParseProvider 将用户输入解析为服务商标识
//
// 支持标准标识和常见别名（claude、gemini、kimi 等），无法识别时回退为 openai。
func ParseProvider(input string) Provider {
	name := strings.ToLower(strings.TrimSpace(input))
	if p, ok := providerAliases[name]; ok {
		return p
	}
	if p := Provider(name); p.IsKnown() {
		return p
	}
	return ProviderOpenAI
}

// RequestFormat 请求格式
type RequestFormat string

const (
	FormatNative           RequestFormat = "native"            // 原生格式
	FormatOpenAICompatible RequestFormat = "openai-compatible" // OpenAI 兼容格式
)

// IsValid 判断请求格式是否合法
func (f RequestFormat) IsValid() bool {
	return f == FormatNative || f == FormatOpenAICompatible
}
