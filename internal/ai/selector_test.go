package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 只占位不发请求，用于拼装提供商可用性快照
type fakeProvider struct {
	id         ProviderID
	completion *Completion
	err        error
}

func (f *fakeProvider) Name() ProviderID {
	return f.id
}

func (f *fakeProvider) Complete(_ context.Context, _ *Request) (*Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

// newTestRouter 构造指定提供商可用的 Router
func newTestRouter(available ...ProviderID) *Router {
	providers := make(map[ProviderID]Provider)
	for _, id := range available {
		providers[id] = &fakeProvider{id: id}
	}
	return NewRouterWithProviders(providers, 2000, 0)
}

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name          string
		available     []ProviderID
		taskType      string
		contextLength int
		want          Model
	}{
		{
			name:      "coding 优先 gpt-4-turbo",
			available: []ProviderID{ProviderOpenAI, ProviderAnthropic, ProviderGoogle},
			taskType:  "coding",
			want:      ModelGPT4Turbo,
		},
		{
			name:      "coding 在 openai 不可用时落到 claude",
			available: []ProviderID{ProviderAnthropic, ProviderGoogle},
			taskType:  "coding",
			want:      ModelClaude3Opus,
		},
		{
			name:      "general 优先 gemini-pro",
			available: []ProviderID{ProviderOpenAI, ProviderGoogle},
			taskType:  "general",
			want:      ModelGeminiPro,
		},
		{
			// gemini-pro 窗口 32768，超长上下文切到 gpt-3.5-turbo
			name:          "上下文超过窗口的候选被过滤",
			available:     []ProviderID{ProviderOpenAI, ProviderGoogle},
			taskType:      "general",
			contextLength: 40000,
			want:          ModelGPT35,
		},
		{
			// gpt-4-turbo 窗口 128000，claude-3-opus 200000
			name:          "coding 超长上下文只剩 claude",
			available:     []ProviderID{ProviderOpenAI, ProviderAnthropic},
			taskType:      "coding",
			contextLength: 150000,
			want:          ModelClaude3Opus,
		},
		{
			name:      "未知任务类型使用默认模型",
			available: []ProviderID{ProviderOpenAI},
			taskType:  "juggling",
			want:      DefaultModel,
		},
		{
			// 全部候选被淘汰时仍返回兜底模型，由调用方失败后回退
			name:     "无可用提供商返回兜底模型",
			taskType: "coding",
			want:     DefaultModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(tt.available...)
			assert.Equal(t, tt.want, r.SelectModel(tt.taskType, tt.contextLength))
		})
	}
}

func TestSelectModelDeterministic(t *testing.T) {
	r := newTestRouter(ProviderOpenAI, ProviderAnthropic, ProviderGoogle)
	first := r.SelectModel("analysis", 500)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, r.SelectModel("analysis", 500))
	}
}

func TestFallbackModel(t *testing.T) {
	t.Run("非 gpt-3.5 回退到 gpt-3.5", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI, ProviderGoogle)
		fb, ok := r.FallbackModel(ModelGPT4)
		require.True(t, ok)
		assert.Equal(t, ModelGPT35, fb)
	})

	t.Run("gpt-3.5 回退到 gemini-pro", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI, ProviderGoogle)
		fb, ok := r.FallbackModel(ModelGPT35)
		require.True(t, ok)
		assert.Equal(t, ModelGeminiPro, fb)
	})

	t.Run("回退提供商不可用时没有回退", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI)
		_, ok := r.FallbackModel(ModelGPT35)
		assert.False(t, ok)
	})
}

func TestRouterGenerate(t *testing.T) {
	t.Run("按模型分发到所属提供商", func(t *testing.T) {
		want := &Completion{
			Content:  "hello",
			Model:    ModelGPT35,
			Provider: ProviderOpenAI,
			Usage:    Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
		}
		r := NewRouterWithProviders(map[ProviderID]Provider{
			ProviderOpenAI: &fakeProvider{id: ProviderOpenAI, completion: want},
		}, 2000, time.Minute)

		got, err := r.Generate(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
			Model:    ModelGPT35,
		})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("未知模型返回错误", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI)
		_, err := r.Generate(context.Background(), &Request{Model: Model("no-such-model")})
		assert.Error(t, err)
	})

	t.Run("提供商未配置返回错误", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI)
		_, err := r.Generate(context.Background(), &Request{Model: ModelGeminiPro})
		require.Error(t, err)

		var perr *ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ProviderGoogle, perr.Provider)
	})

	t.Run("请求未指定 max_tokens 时填默认值", func(t *testing.T) {
		r := newTestRouter(ProviderOpenAI)
		req := &Request{Model: ModelGPT35}
		r.Generate(context.Background(), req)
		assert.Equal(t, 2000, req.MaxTokens)
	})
}
