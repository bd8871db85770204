// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
// 每个提供商实现同一个 Provider 接口，上层代码不需要关心请求到底发给了谁
package ai

import (
	"context"
	"fmt"
)

// ProviderID 提供商标识
type ProviderID string

// 支持的提供商
const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
)

// 消息角色常量
// 与存储层的角色一致，但 error 角色永远不会发给模型
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 发给模型的一条消息
type Message struct {
	Role    string `json:"role"`    // system / user / assistant
	Content string `json:"content"` // 消息文本
}

// Usage token 用量统计
// 三个提供商的字段名各不相同，适配器负责统一提取
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 输入 token 数
	CompletionTokens int `json:"completion_tokens"` // 输出 token 数
	TotalTokens      int `json:"total_tokens"`      // 总 token 数
}

// Request 统一的补全请求
type Request struct {
	Messages    []Message // 有序的对话消息
	Model       Model     // 目标模型
	Temperature float64   // 温度，0.0 - 1.0
	MaxTokens   int       // 最大输出 token 数，0 表示使用默认值
}

// Completion 统一的补全结果
type Completion struct {
	Content  string     `json:"content"`  // 模型生成的文本
	Model    Model      `json:"model"`    // 实际使用的模型
	Provider ProviderID `json:"provider"` // 实际使用的提供商
	Usage    Usage      `json:"usage"`    // token 用量
}

// Provider 是每个 LLM 后端都要实现的统一调用契约
// 适配器只负责一次调用，内部不做重试
// 失败重试和模型回退是上层编排的职责
type Provider interface {
	// Name 返回提供商标识
	Name() ProviderID

	// Complete 发起一次补全调用并返回归一化的结果
	// 任何网络、鉴权或响应格式错误都以 *ProviderError 返回
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// ProviderError 表示一次模型调用失败
// 携带出错的提供商、模型和底层原因
type ProviderError struct {
	Provider ProviderID // 出错的提供商
	Model    Model      // 出错的模型
	Err      error      // 底层错误
}

// Error 实现 error 接口
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Provider, e.Model, e.Err)
}

// Unwrap 支持 errors.Is / errors.As 继续展开底层错误
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// newProviderError 构造 ProviderError
func newProviderError(provider ProviderID, model Model, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Err: err}
}
