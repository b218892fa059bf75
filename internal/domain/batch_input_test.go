package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchInput(t *testing.T) {
	t.Run("裸密钥默认openai", func(t *testing.T) {
		items := ParseBatchInput("sk-aaaaaaaaaaaaaaaaaaaa\n\n  sk-bbbbbbbbbbbbbbbbbbbb  \n")
		require.Len(t, items, 2)
		assert.Equal(t, ProviderOpenAI, items[0].Provider)
		assert.Equal(t, "sk-bbbbbbbbbbbbbbbbbbbb", items[1].Key)
		assert.Equal(t, StatusPending, items[0].Status)
		assert.NotEmpty(t, items[0].ID)
		assert.NotEqual(t, items[0].ID, items[1].ID)
	})

	t.Run("服务商前缀与别名", func(t *testing.T) {
		items := ParseBatchInput("claude:sk-ant-xyz\nkimi:sk-moon\nunknownvendor:abc123")
		require.Len(t, items, 3)
		assert.Equal(t, ProviderAnthropic, items[0].Provider)
		assert.Equal(t, "sk-ant-xyz", items[0].Key)
		assert.Equal(t, ProviderMoonshot, items[1].Provider)
		assert.Equal(t, ProviderOpenAI, items[2].Provider)
	})

	t.Run("密钥中包含冒号", func(t *testing.T) {
		items := ParseBatchInput("openai:part1:part2")
		require.Len(t, items, 1)
		assert.Equal(t, "part1:part2", items[0].Key)
		assert.Empty(t, items[0].CustomEndpoint)
	})

	t.Run("custom保留URL", func(t *testing.T) {
		items := ParseBatchInput("custom:my-key:https://llm.example.com/v1/models")
		require.Len(t, items, 1)
		assert.Equal(t, ProviderCustom, items[0].Provider)
		assert.Equal(t, "my-key", items[0].Key)
		assert.Equal(t, "https://llm.example.com/v1/models", items[0].CustomEndpoint)
	})

	t.Run("JSON数组", func(t *testing.T) {
		input := `[
			{"service":"gemini","key":"AIza-one"},
			{"provider":"baidu","apiKey":"baidu-key","secretKey":"baidu-secret"},
			{"service":"custom","key":"k","customUrl":"https://x.example.com"},
			{"service":"openai","key":"  "}
		]`
		items := ParseBatchInput(input)
		require.Len(t, items, 3)
		assert.Equal(t, ProviderGoogle, items[0].Provider)
		assert.Equal(t, ProviderBaidu, items[1].Provider)
		assert.Equal(t, "baidu-key", items[1].Key)
		assert.Equal(t, "baidu-secret", items[1].SecretKey)
		assert.Equal(t, "https://x.example.com", items[2].CustomEndpoint)
	})

	t.Run("全角冒号折叠", func(t *testing.T) {
		items := ParseBatchInput("claude：sk-ant-full")
		require.Len(t, items, 1)
		assert.Equal(t, ProviderAnthropic, items[0].Provider)
		assert.Equal(t, "sk-ant-full", items[0].Key)
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Empty(t, ParseBatchInput("   \n  "))
	})
}

func TestValidateBatchInput(t *testing.T) {
	t.Run("空输入", func(t *testing.T) {
		report := ValidateBatchInput("")
		assert.False(t, report.IsValid)
		assert.Equal(t, []string{MsgInputEmpty}, report.Errors)
	})

	t.Run("未解析出密钥", func(t *testing.T) {
		report := ValidateBatchInput(`[{"service":"openai","key":""}]`)
		assert.False(t, report.IsValid)
		assert.Equal(t, []string{MsgNothingParsed}, report.Errors)
	})

	t.Run("重复与过短", func(t *testing.T) {
		report := ValidateBatchInput("sk-1234567890abc\nsk-1234567890abc\nshort")
		assert.False(t, report.IsValid)
		assert.Contains(t, report.Errors, fmt.Sprintf(MsgDuplicateKeys, 1))
		assert.Contains(t, report.Errors, fmt.Sprintf(MsgSuspiciousKeys, 1))
		assert.Equal(t, 3, report.Total)
	})

	t.Run("预览最多5条", func(t *testing.T) {
		var lines []string
		for i := 0; i < 8; i++ {
			lines = append(lines, fmt.Sprintf("sk-unique-key-%02d", i))
		}
		report := ValidateBatchInput(strings.Join(lines, "\n"))
		assert.True(t, report.IsValid)
		assert.Empty(t, report.Errors)
		assert.Equal(t, 8, report.Total)
		assert.Len(t, report.Preview, PreviewSize)
	})
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "********", MaskKey("12345678"))
	assert.Equal(t, "sk-1*********abcd", MaskKey("sk-1234567890abcd"))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("sk-one")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("sk-one"))
	assert.NotEqual(t, a, Fingerprint("sk-two"))
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input    string
		expected Provider
	}{
		{"claude", ProviderAnthropic},
		{"Gemini", ProviderGoogle},
		{"wenxin", ProviderBaidu},
		{"tongyi", ProviderQwen},
		{"glm", ProviderZhipu},
		{"hf", ProviderHuggingFace},
		{"deepseek", ProviderDeepSeek},
		{"github_copilot", ProviderGitHubCopilot},
		{"nonsense", ProviderOpenAI},
		{"", ProviderOpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseProvider(tt.input))
		})
	}
}
