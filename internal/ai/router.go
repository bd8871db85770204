// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ai-pc-server/internal/config"
)

// Router 管理所有已配置的提供商客户端，并按模型分发请求
// 提供商客户端在进程启动时构造一次，进程退出前一直持有
// 凭证缺失的提供商不会被构造，在整个进程生命周期内视为不可用
type Router struct {
	providers map[ProviderID]Provider // 已配置的提供商
	maxTokens int                     // 请求未指定时的默认最大 token 数
	timeout   time.Duration           // 单次调用的超时时间
}

// NewRouter 根据配置构造 Router
// 只为提供了 API Key 的提供商创建客户端
// 参数:
//   - cfg: 应用配置
//
// 返回:
//   - *Router: 路由实例
func NewRouter(cfg *config.Config) *Router {
	client := &http.Client{
		Timeout: cfg.AI.RequestTimeout,
	}

	providers := make(map[ProviderID]Provider)
	if cfg.AI.OpenAIAPIKey != "" {
		providers[ProviderOpenAI] = NewOpenAIProvider(cfg.AI.OpenAIAPIKey, client)
	}
	if cfg.AI.AnthropicAPIKey != "" {
		providers[ProviderAnthropic] = NewAnthropicProvider(cfg.AI.AnthropicAPIKey, client)
	}
	if cfg.AI.GoogleAPIKey != "" {
		providers[ProviderGoogle] = NewGoogleProvider(cfg.AI.GoogleAPIKey, client)
	}

	return &Router{
		providers: providers,
		maxTokens: cfg.AI.MaxTokens,
		timeout:   cfg.AI.RequestTimeout,
	}
}

// NewRouterWithProviders 用现成的提供商集合构造 Router
// 用于测试时注入假的提供商
func NewRouterWithProviders(providers map[ProviderID]Provider, maxTokens int, timeout time.Duration) *Router {
	return &Router{
		providers: providers,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// IsAvailable 检查提供商是否可用
// 可用的定义：启动时提供了凭证（即客户端被构造了）
func (r *Router) IsAvailable(provider ProviderID) bool {
	_, ok := r.providers[provider]
	return ok
}

// Generate 把请求分发给模型所属的提供商并返回归一化结果
// 只做一次调用，失败不重试——回退是编排层的职责
// 调用受超时约束，超时同样以 *ProviderError 返回
// 参数:
//   - ctx: 上下文
//   - req: 统一补全请求
//
// 返回:
//   - *Completion: 归一化的补全结果
//   - error: 失败时为 *ProviderError
func (r *Router) Generate(ctx context.Context, req *Request) (*Completion, error) {
	info, ok := Capability(req.Model)
	if !ok {
		return nil, newProviderError("", req.Model, errors.New("unknown model"))
	}

	provider, ok := r.providers[info.Provider]
	if !ok {
		return nil, newProviderError(info.Provider, req.Model, errors.New("provider not configured"))
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = r.maxTokens
	}

	// 每次调用独立超时，不跨请求传播取消
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	return provider.Complete(ctx, req)
}
