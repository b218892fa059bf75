package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/auth"
	"github.com/chatUnique/keyguard-pro/internal/batch"
	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/fetch"
	"github.com/chatUnique/keyguard-pro/internal/provider"
	"github.com/chatUnique/keyguard-pro/internal/validator"
)

// MockSender 模拟出站传输
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*fetch.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

type recorder struct {
	mu       sync.Mutex
	statuses []domain.KeyStatus
	conns    []fetch.Connectivity
}

func (r *recorder) RecordValidation(_ domain.Provider, status domain.KeyStatus, _ time.Duration) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
}

func (r *recorder) UpdateConnectivity(c fetch.Connectivity) {
	r.mu.Lock()
	r.conns = append(r.conns, c)
	r.mu.Unlock()
}

var openAIKey = "sk-" + strings.Repeat("a", 48)

func okResponse(body string) *fetch.Response {
	return &fetch.Response{
		Status:     http.StatusOK,
		StatusText: "OK",
		Headers:    map[string]string{"content-type": "application/json"},
		Data:       json.RawMessage(body),
		OK:         true,
	}
}

func newKeyService(sender fetch.Sender, rec ValidationRecorder) *KeyService {
	factory := fetch.NewFactory(sender, nil, nil, fetch.Preference{}, nil)
	return NewKeyService(validator.New(provider.NewRegistry(), nil, nil), factory, rec, nil)
}

func TestKeyService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("有效密钥并清空输入", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(okResponse(`{"data":[{"id":"gpt-4"}]}`), nil)
		rec := &recorder{}
		svc := newKeyService(sender, rec)

		in := &ValidateKeyInput{Key: openAIKey, Provider: "openai"}
		result, err := svc.Validate(ctx, in)
		require.NoError(t, err)
		assert.True(t, result.IsValid)
		assert.Equal(t, domain.StatusValid, result.Status)
		assert.Empty(t, in.Key)
		assert.Equal(t, []domain.KeyStatus{domain.StatusValid}, rec.statuses)
	})

	t.Run("空服务商默认 openai", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(okResponse(`{"data":[]}`), nil)
		result, err := newKeyService(sender, nil).Validate(ctx, &ValidateKeyInput{Key: openAIKey})
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderOpenAI, result.Provider)
	})

	t.Run("别名可以解析", func(t *testing.T) {
		sender := &MockSender{}
		result, err := newKeyService(sender, nil).Validate(ctx, &ValidateKeyInput{Key: "bad", Provider: "claude"})
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderAnthropic, result.Provider)
		assert.Equal(t, domain.StatusFormatError, result.Status)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("参数错误", func(t *testing.T) {
		svc := newKeyService(&MockSender{}, nil)

		_, err := svc.Validate(ctx, &ValidateKeyInput{Key: "  "})
		assert.ErrorIs(t, err, ErrKeyRequired)

		_, err = svc.Validate(ctx, &ValidateKeyInput{Key: openAIKey, Provider: "not-a-provider"})
		assert.ErrorIs(t, err, ErrUnknownProvider)

		_, err = svc.Validate(ctx, &ValidateKeyInput{Key: openAIKey, RequestFormat: "xml"})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("传输错误转换为错误结果", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, &fetch.TimeoutError{URL: "https://api.openai.com/v1/models", Timeout: time.Second})
		rec := &recorder{}

		result, err := newKeyService(sender, rec).Validate(ctx, &ValidateKeyInput{Key: openAIKey})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Equal(t, validator.MsgUnknown, result.Message)
		assert.NotEmpty(t, result.Error)
		assert.Equal(t, []domain.KeyStatus{domain.StatusError}, rec.statuses)
	})
}

func TestKeyService_BatchValidator(t *testing.T) {
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(okResponse(`{"data":[]}`), nil)
	svc := newKeyService(sender, nil)

	validate := svc.BatchValidator(domain.BatchConfig{RequestFormat: domain.FormatNative})
	for i := 0; i < 3; i++ {
		result, err := validate(context.Background(), domain.NewWorkItem(domain.ProviderOpenAI, openAIKey))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusValid, result.Status)
		assert.Equal(t, domain.FormatNative, result.RequestFormat)
	}
	sender.AssertNumberOfCalls(t, "Send", 3)
}

func statusResponse(code int, text string) *fetch.Response {
	return &fetch.Response{
		Status:     code,
		StatusText: text,
		Headers:    map[string]string{"content-type": "application/json"},
		Data:       json.RawMessage(`{"error":{"message":"` + text + `"}}`),
		OK:         code >= 200 && code < 300,
	}
}

// bearerFor 按 Authorization 头匹配指定密钥的请求
func bearerFor(key string) interface{} {
	return mock.MatchedBy(func(req *fetch.Request) bool {
		return req.Headers["Authorization"] == "Bearer "+key
	})
}

func runBatch(t *testing.T, svc *KeyService, cfg batch.Config, items []domain.WorkItem) *batch.Scheduler {
	t.Helper()
	s := batch.NewScheduler(svc.BatchValidator(domain.BatchConfig{RequestFormat: domain.FormatNative}), nil)
	require.NoError(t, s.Start(context.Background(), items, cfg, batch.Callbacks{}))
	return s
}

func TestBatchScenarios(t *testing.T) {
	cfg := batch.Config{Concurrency: 1, MaxRetries: 0, RetryDelay: time.Millisecond, Timeout: time.Second}
	keys := []string{
		"sk-" + strings.Repeat("a", 48),
		"sk-" + strings.Repeat("b", 48),
		"sk-" + strings.Repeat("c", 48),
	}
	items := func() []domain.WorkItem {
		out := make([]domain.WorkItem, len(keys))
		for i, key := range keys {
			out[i] = domain.NewWorkItem(domain.ProviderOpenAI, key)
		}
		return out
	}

	t.Run("全部有效", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(okResponse(`{"data":[{"id":"gpt-4"}]}`), nil)

		s := runBatch(t, newKeyService(sender, nil), cfg, items())

		stats := s.Statistics()
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 3, stats.Completed)
		assert.Equal(t, 3, stats.Valid)
		assert.Equal(t, 100.0, stats.Progress)
		assert.Equal(t, 100.0, stats.SuccessRate)
		sender.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("混合结果", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, bearerFor(keys[0])).Return(statusResponse(http.StatusUnauthorized, "Unauthorized"), nil)
		sender.On("Send", mock.Anything, bearerFor(keys[1])).Return(statusResponse(http.StatusTooManyRequests, "Too Many Requests"), nil)
		sender.On("Send", mock.Anything, bearerFor(keys[2])).Return(okResponse(`{"data":[]}`), nil)

		s := runBatch(t, newKeyService(sender, nil), cfg, items())

		got := s.Items()
		require.Len(t, got, 3)
		assert.Equal(t, domain.StatusInvalid, got[0].Status)
		assert.Equal(t, domain.StatusRateLimited, got[1].Status)
		assert.Equal(t, domain.StatusValid, got[2].Status)

		stats := s.Statistics()
		assert.Equal(t, 3, stats.Completed)
		assert.Equal(t, 1, stats.Valid)
		assert.Equal(t, 1, stats.Invalid)
		assert.Equal(t, 1, stats.RateLimited)
		assert.InDelta(t, 33.3, stats.SuccessRate, 0.1)
	})

	t.Run("传输层并发不超过上限", func(t *testing.T) {
		var inFlight, peak, calls atomic.Int32
		sender := fetch.SenderFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
			calls.Add(1)
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return okResponse(`{"data":[]}`), nil
		})

		batchItems := make([]domain.WorkItem, 20)
		for i := range batchItems {
			batchItems[i] = domain.NewWorkItem(domain.ProviderOpenAI, "sk-"+strings.Repeat(string(rune('a'+i)), 48))
		}
		limited := cfg
		limited.Concurrency = 3
		s := runBatch(t, newKeyService(sender, nil), limited, batchItems)

		assert.Equal(t, int32(20), calls.Load())
		assert.LessOrEqual(t, peak.Load(), int32(3))
		assert.Equal(t, 20, s.Statistics().Valid)
	})
}

func newBatchService(t *testing.T) *BatchService {
	t.Helper()
	factory := func(domain.BatchConfig) batch.ValidateFunc {
		return func(_ context.Context, item domain.WorkItem) (*domain.ValidationResult, error) {
			return &domain.ValidationResult{IsValid: true, Provider: item.Provider, Status: domain.StatusValid}, nil
		}
	}
	manager := batch.NewManager(batch.ManagerConfig{
		MaxItems: 10,
		Defaults: batch.Config{Concurrency: 2, MaxRetries: 2, RetryDelay: time.Millisecond, Timeout: time.Second},
	}, batch.ManagerDeps{
		Factory: factory,
		Tokens:  auth.NewTokenManager("0123456789abcdef0123456789abcdef", "keyguard-pro", time.Hour),
	})
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })
	return NewBatchService(manager, nil)
}

func TestBatchService_Create(t *testing.T) {
	t.Run("文本输入", func(t *testing.T) {
		svc := newBatchService(t)
		in := &CreateBatchInput{Input: "openai:" + openAIKey + "\n" + openAIKey}
		job, err := svc.Create(in)
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.NotEmpty(t, job.Token)
		assert.Equal(t, 2, job.Config.MaxRetries)
		assert.Empty(t, in.Input)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snapshot, err := svc.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Len(t, snapshot.Items, 2)
	})

	t.Run("结构化条目且显式关闭重试", func(t *testing.T) {
		svc := newBatchService(t)
		zero := 0
		job, err := svc.Create(&CreateBatchInput{
			Items: []BatchItemInput{
				{Provider: "gemini", Key: "AIza" + strings.Repeat("g", 35)},
				{Provider: "openai", Key: " "},
			},
			MaxRetries: &zero,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, job.Config.MaxRetries)
	})

	t.Run("参数越界", func(t *testing.T) {
		svc := newBatchService(t)
		tooMany := MaxRetriesLimit + 1

		_, err := svc.Create(&CreateBatchInput{Input: openAIKey, Concurrency: MaxConcurrency + 1})
		assert.ErrorIs(t, err, ErrInvalidBatchConfig)
		_, err = svc.Create(&CreateBatchInput{Input: openAIKey, MaxRetries: &tooMany})
		assert.ErrorIs(t, err, ErrInvalidBatchConfig)
		_, err = svc.Create(&CreateBatchInput{Input: openAIKey, TimeoutMs: MaxTimeoutMs + 1})
		assert.ErrorIs(t, err, ErrInvalidBatchConfig)
		_, err = svc.Create(&CreateBatchInput{Input: openAIKey, RequestFormat: "soap"})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("空输入", func(t *testing.T) {
		_, err := newBatchService(t).Create(&CreateBatchInput{Input: "\n\n"})
		assert.ErrorIs(t, err, domain.ErrEmptyBatch)
	})

	t.Run("预览", func(t *testing.T) {
		report := newBatchService(t).Parse(openAIKey)
		assert.True(t, report.IsValid)
		assert.Equal(t, 1, report.Total)
	})
}

type stubProber struct {
	conn  fetch.Connectivity
	force []bool
}

func (p *stubProber) Check(_ context.Context, force bool) fetch.Connectivity {
	p.force = append(p.force, force)
	return p.conn
}

func (p *stubProber) State() fetch.ProbeState { return p.conn.State }

func TestNetworkService_Status(t *testing.T) {
	prober := &stubProber{conn: fetch.Connectivity{State: fetch.ProbeRelayOnly, Relay: true, Recommended: fetch.PathRelay}}
	rec := &recorder{}
	pref := fetch.Preference{RelayEnabled: true, AutoDetect: true}
	svc := NewNetworkService(prober, pref, "https://relay.example.com/api/proxy", rec, nil)

	status := svc.Status(context.Background(), true)
	assert.Equal(t, fetch.PathRelay, status.ActivePath)
	assert.Equal(t, "https://relay.example.com/api/proxy", status.RelayEndpoint)
	assert.Equal(t, []bool{true}, prober.force)
	assert.Len(t, rec.conns, 1)
	assert.Equal(t, fetch.ProbeRelayOnly, svc.State())

	// 缓存结果不重复记录指标
	prober.conn.Cached = true
	svc.Status(context.Background(), false)
	assert.Len(t, rec.conns, 1)

	t.Run("未启用中转", func(t *testing.T) {
		svc := NewNetworkService(prober, fetch.Preference{}, "https://relay.example.com/api/proxy", nil, nil)
		status := svc.Status(context.Background(), false)
		assert.Equal(t, fetch.PathDirect, status.ActivePath)
		assert.Empty(t, status.RelayEndpoint)
	})
}

func TestCustomRequestService_Validate(t *testing.T) {
	svc := NewCustomRequestService(&MockSender{}, false, nil)

	t.Run("合法请求", func(t *testing.T) {
		check := svc.ValidateRequest(CustomRequest{URL: "https://api.openai.com/v1/models", Method: "get", TimeoutMs: 1000})
		assert.True(t, check.IsValid)
		assert.Empty(t, check.Errors)
	})

	t.Run("收集所有错误", func(t *testing.T) {
		check := svc.ValidateRequest(CustomRequest{
			URL:       "",
			Method:    "TRACE",
			TimeoutMs: 0,
			Headers:   map[string]string{" ": "x"},
		})
		assert.False(t, check.IsValid)
		assert.Equal(t, []string{MsgURLRequired, MsgMethodInvalid, MsgTimeoutRange, MsgHeaderNameEmpty}, check.Errors)
	})

	t.Run("URL格式和超时上限", func(t *testing.T) {
		check := svc.ValidateRequest(CustomRequest{URL: "ftp://host/file", Method: "GET", TimeoutMs: MaxCustomTimeoutMs + 1})
		assert.Equal(t, []string{MsgURLInvalid, MsgTimeoutRange}, check.Errors)
	})

	t.Run("拒绝内网地址", func(t *testing.T) {
		for _, target := range []string{"http://127.0.0.1:8080/", "http://localhost/x", "http://10.1.2.3/", "http://169.254.169.254/latest"} {
			check := svc.ValidateRequest(CustomRequest{URL: target, Method: "GET", TimeoutMs: 1000})
			assert.Equal(t, []string{MsgHostNotPermitted}, check.Errors, target)
		}
	})
}

func TestCustomRequestService_Execute(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("替换变量并返回响应", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(r *fetch.Request) bool {
			return r.URL == "https://api.example.com/items?ts=1714550400" &&
				r.Method == http.MethodPost &&
				r.Headers["Authorization"] == "Bearer secret" &&
				r.Body == `{"at":"2024-05-01T08:00:00.000Z"}` &&
				r.Timeout == 2*time.Second
		})).Return(okResponse(`{"ok":true}`), nil)

		svc := NewCustomRequestService(sender, false, nil)
		svc.now = func() time.Time { return fixed }

		resp, err := svc.Execute(ctx, CustomRequest{
			URL:       "https://api.example.com/items?ts={UNIX_TIME}",
			Method:    "post",
			Headers:   map[string]string{"Authorization": "Bearer {API_KEY}"},
			Body:      `{"at":"{ISO_DATE}"}`,
			TimeoutMs: 2000,
			Variables: map[string]string{"API_KEY": "secret"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
		assert.Empty(t, resp.Error)
		sender.AssertExpectations(t)
	})

	t.Run("用户变量覆盖内置变量", func(t *testing.T) {
		svc := NewCustomRequestService(&MockSender{}, false, nil)
		assert.Equal(t, "x-42", svc.ReplaceVariables("x-{RANDOM}", map[string]string{"RANDOM": "42"}))
		assert.Equal(t, "{MISSING}", svc.ReplaceVariables("{MISSING}", nil))
	})

	t.Run("GET 不发送请求体", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(r *fetch.Request) bool { return r.Body == nil })).
			Return(okResponse(`[]`), nil)
		svc := NewCustomRequestService(sender, false, nil)

		_, err := svc.Execute(ctx, CustomRequest{URL: "https://api.example.com", Method: "GET", Body: "ignored", TimeoutMs: 1000})
		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("超时", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, &fetch.TimeoutError{URL: "https://api.example.com", Timeout: time.Second})
		svc := NewCustomRequestService(sender, false, nil)

		resp, err := svc.Execute(ctx, CustomRequest{URL: "https://api.example.com", Method: "GET", TimeoutMs: 1000})
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Status)
		assert.Equal(t, "Request Timeout", resp.StatusText)
		assert.Equal(t, "请求超时 (1000ms)", resp.Error)
	})

	t.Run("网络错误", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, &fetch.NetworkError{URL: "https://api.example.com", Err: errors.New("connection refused")})
		svc := NewCustomRequestService(sender, false, nil)

		resp, err := svc.Execute(ctx, CustomRequest{URL: "https://api.example.com", Method: "GET", TimeoutMs: 1000})
		require.NoError(t, err)
		assert.Equal(t, "Network Error", resp.StatusText)
		assert.Contains(t, resp.Error, "connection refused")
	})

	t.Run("连接时拒绝内网地址", func(t *testing.T) {
		sender := &MockSender{}
		blocked := &fetch.NetworkError{URL: "https://internal.example.com", Err: fmt.Errorf("dial: %w", fetch.ErrPrivateAddress)}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, blocked)
		svc := NewCustomRequestService(sender, false, nil)

		resp, err := svc.Execute(ctx, CustomRequest{URL: "https://internal.example.com", Method: "GET", TimeoutMs: 1000})
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Status)
		assert.Equal(t, MsgHostNotPermitted, resp.Error)
	})

	t.Run("无效配置不发请求", func(t *testing.T) {
		sender := &MockSender{}
		svc := NewCustomRequestService(sender, false, nil)
		_, err := svc.Execute(ctx, CustomRequest{URL: "https://api.example.com", Method: "GET"})
		assert.ErrorIs(t, err, ErrInvalidCustomRequest)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestCustomRequestService_Templates(t *testing.T) {
	templates := NewCustomRequestService(&MockSender{}, false, nil).Templates()
	require.Len(t, templates, 5)

	ids := make([]string, 0, len(templates))
	for _, tpl := range templates {
		ids = append(ids, tpl.ID)
		assert.Contains(t, []string{"openai", "anthropic", "google", "custom"}, tpl.Category)
		assert.Contains(t, tpl.Request.Variables, "API_KEY")
	}
	assert.Equal(t, []string{
		"default-openai-models",
		"default-openai-chat",
		"default-claude-messages",
		"default-gemini-models",
		"default-custom-endpoint",
	}, ids)
}
