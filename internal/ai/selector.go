// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
package ai

// DefaultModel 模型选择的兜底默认值
// 所有候选都不可用时返回它——宁可尝试一次再失败回退，也不直接拒绝请求
const DefaultModel = ModelGPT4Turbo

// taskModelPreferences 任务类型到候选模型的静态映射
// 每个任务类型对应一个按优先级排序的候选列表
// 进程启动后只读，保证选择结果完全确定
var taskModelPreferences = map[string][]Model{
	"coding":           {ModelGPT4Turbo, ModelClaude3Opus},
	"creative_writing": {ModelClaude3Opus, ModelGPT4Turbo},
	"analysis":         {ModelClaude3Opus, ModelGPT4Turbo},
	"general":          {ModelGeminiPro, ModelGPT35},
	"translation":      {ModelGeminiPro, ModelGPT4Turbo},
	"quick_response":   {ModelGeminiPro, ModelGPT35},
}

// SelectModel 根据任务类型和上下文长度选择模型
// 算法:
//  1. 按任务类型取候选列表，未知任务类型使用默认候选
//  2. 过滤掉上下文窗口不够、或所属提供商未配置凭证的候选
//  3. 返回第一个存活的候选；全部淘汰则返回 DefaultModel
//
// 没有任何随机性：给定相同的 (taskType, contextLength, 提供商可用性快照)，
// 结果永远相同
func (r *Router) SelectModel(taskType string, contextLength int) Model {
	preferred, ok := taskModelPreferences[taskType]
	if !ok {
		preferred = []Model{DefaultModel}
	}

	for _, model := range preferred {
		info, ok := Capability(model)
		if !ok {
			continue
		}
		if contextLength > info.ContextWindow {
			continue
		}
		if !r.IsAvailable(info.Provider) {
			continue
		}
		return model
	}

	// 所有候选都不合适时返回兜底模型
	// 后续调用仍可能失败并触发回退
	return DefaultModel
}

// FallbackModel 返回失败模型对应的回退模型
// 策略与上线以来的行为保持一致：固定的成对回退，而不是在能力表里
// 搜索次优模型——失败模型不是 gpt-3.5-turbo 时回退到 gpt-3.5-turbo，
// 否则回退到 gemini-pro
//
// 返回:
//   - Model: 回退模型
//   - bool: 是否存在可用的回退（回退提供商未配置时为 false）
func (r *Router) FallbackModel(failed Model) (Model, bool) {
	fallback := ModelGPT35
	if failed == ModelGPT35 {
		fallback = ModelGeminiPro
	}
	if fallback == failed {
		return "", false
	}

	info, ok := Capability(fallback)
	if !ok || !r.IsAvailable(info.Provider) {
		return "", false
	}
	return fallback, true
}
