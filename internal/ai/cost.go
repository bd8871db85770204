// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
package ai

import (
	"github.com/shopspring/decimal"
)

// CalculateCost 计算一次模型调用的费用，单位为美分
// 这是全系统唯一的费用计算入口：持久化和接口返回都必须用它，
// 避免存储值和展示值因为两套公式而出现偏差
//
// 计算方式: prompt_tokens/1000 * 输入单价 + completion_tokens/1000 * 输出单价
// 换算成美分后向上取整——不足一美分的调用按一美分计，
// 保证任何有 token 消耗的计费调用费用都大于 0
//
// 参数:
//   - model: 模型标识
//   - usage: token 用量
//
// 返回:
//   - int64: 美分，能力表中没有的模型返回 0（费用统计降级而不是阻断对话）
func CalculateCost(model Model, usage Usage) int64 {
	info, ok := Capability(model)
	if !ok {
		return 0
	}

	thousand := decimal.NewFromInt(1000)

	inputCost := decimal.NewFromInt(int64(usage.PromptTokens)).
		Div(thousand).
		Mul(info.InputCostPer1K)
	outputCost := decimal.NewFromInt(int64(usage.CompletionTokens)).
		Div(thousand).
		Mul(info.OutputCostPer1K)

	// 美元 → 美分
	cents := inputCost.Add(outputCost).Mul(decimal.NewFromInt(100))

	return cents.Ceil().IntPart()
}

// CostInDollars 将美分换算为美元
// 仅用于响应序列化，存储和累加一律使用美分
func CostInDollars(cents int64) float64 {
	return float64(cents) / 100
}
