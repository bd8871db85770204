package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		usage Usage
		want  int64
	}{
		{
			// 不足一美分的调用向上取整到一美分，计费调用费用不为 0
			name:  "小用量向上取整到一美分",
			model: ModelGPT35,
			usage: Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
			want:  1,
		},
		{
			// 1000/1000 token: 0.03 + 0.06 = 0.09 美元 = 9 美分
			name:  "gpt-4 整千 token",
			model: ModelGPT4,
			usage: Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
			want:  9,
		},
		{
			// 10000/5000 token: 0.15 + 0.375 = 0.525 美元，取整到 53 美分
			name:  "claude-3-opus 大用量",
			model: ModelClaude3Opus,
			usage: Usage{PromptTokens: 10000, CompletionTokens: 5000, TotalTokens: 15000},
			want:  53,
		},
		{
			name:  "零用量费用为零",
			model: ModelGPT4,
			usage: Usage{},
			want:  0,
		},
		{
			// 能力表中没有的模型费用统计降级为 0，不阻断对话
			name:  "未知模型费用为零",
			model: Model("no-such-model"),
			usage: Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateCost(tt.model, tt.usage))
		})
	}
}

func TestCostInDollars(t *testing.T) {
	assert.Equal(t, 0.0, CostInDollars(0))
	assert.Equal(t, 0.01, CostInDollars(1))
	assert.Equal(t, 1.53, CostInDollars(153))
}
