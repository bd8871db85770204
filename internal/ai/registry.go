// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
package ai

import (
	"github.com/shopspring/decimal"
)

// Model 模型标识
type Model string

// 支持的模型
const (
	// OpenAI
	ModelGPT4Turbo Model = "gpt-4-turbo-preview"
	ModelGPT4      Model = "gpt-4"
	ModelGPT35     Model = "gpt-3.5-turbo"

	// Anthropic
	ModelClaude3Opus   Model = "claude-3-opus-20240229"
	ModelClaude3Sonnet Model = "claude-3-sonnet-20240229"
	ModelClaude3Haiku  Model = "claude-3-haiku-20240307"

	// Google
	ModelGeminiPro       Model = "gemini-pro"
	ModelGeminiProVision Model = "gemini-pro-vision"
)

// ModelInfo 模型能力记录
// 进程启动时初始化一次，运行期间只读
type ModelInfo struct {
	Provider        ProviderID      // 所属提供商
	Strengths       []string        // 擅长的任务类型，按强弱排序
	ContextWindow   int             // 最大上下文窗口
	InputCostPer1K  decimal.Decimal // 每 1000 输入 token 的费用（美元）
	OutputCostPer1K decimal.Decimal // 每 1000 输出 token 的费用（美元）
}

// modelCapabilities 静态模型能力表
// 价格来自各提供商 2024 年初的公开定价
var modelCapabilities = map[Model]ModelInfo{
	ModelGPT4Turbo: {
		Provider:        ProviderOpenAI,
		Strengths:       []string{"coding", "analysis", "general"},
		ContextWindow:   128000,
		InputCostPer1K:  decimal.RequireFromString("0.01"),
		OutputCostPer1K: decimal.RequireFromString("0.03"),
	},
	ModelGPT4: {
		Provider:        ProviderOpenAI,
		Strengths:       []string{"coding", "analysis"},
		ContextWindow:   8192,
		InputCostPer1K:  decimal.RequireFromString("0.03"),
		OutputCostPer1K: decimal.RequireFromString("0.06"),
	},
	ModelGPT35: {
		Provider:        ProviderOpenAI,
		Strengths:       []string{"general", "quick_response"},
		ContextWindow:   16385,
		InputCostPer1K:  decimal.RequireFromString("0.0005"),
		OutputCostPer1K: decimal.RequireFromString("0.0015"),
	},
	ModelClaude3Opus: {
		Provider:        ProviderAnthropic,
		Strengths:       []string{"creative_writing", "analysis", "coding"},
		ContextWindow:   200000,
		InputCostPer1K:  decimal.RequireFromString("0.015"),
		OutputCostPer1K: decimal.RequireFromString("0.075"),
	},
	ModelClaude3Sonnet: {
		Provider:        ProviderAnthropic,
		Strengths:       []string{"general", "analysis"},
		ContextWindow:   200000,
		InputCostPer1K:  decimal.RequireFromString("0.003"),
		OutputCostPer1K: decimal.RequireFromString("0.015"),
	},
	ModelClaude3Haiku: {
		Provider:        ProviderAnthropic,
		Strengths:       []string{"quick_response", "general"},
		ContextWindow:   200000,
		InputCostPer1K:  decimal.RequireFromString("0.00025"),
		OutputCostPer1K: decimal.RequireFromString("0.00125"),
	},
	ModelGeminiPro: {
		Provider:        ProviderGoogle,
		Strengths:       []string{"general", "multilingual", "fast"},
		ContextWindow:   32768,
		InputCostPer1K:  decimal.RequireFromString("0.0005"),
		OutputCostPer1K: decimal.RequireFromString("0.0015"),
	},
	ModelGeminiProVision: {
		Provider:        ProviderGoogle,
		Strengths:       []string{"general"},
		ContextWindow:   16384,
		InputCostPer1K:  decimal.RequireFromString("0.0005"),
		OutputCostPer1K: decimal.RequireFromString("0.0015"),
	},
}

// Capability 查询模型能力记录
// 参数:
//   - model: 模型标识
//
// 返回:
//   - ModelInfo: 能力记录
//   - bool: 模型是否在能力表中
func Capability(model Model) (ModelInfo, bool) {
	info, ok := modelCapabilities[model]
	return info, ok
}

// Models 返回能力表中的所有模型
// 用于 /models 接口展示
func Models() []Model {
	models := make([]Model, 0, len(modelCapabilities))
	for m := range modelCapabilities {
		models = append(models, m)
	}
	return models
}
