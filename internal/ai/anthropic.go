// Package ai 提供多个大模型提供商的统一调用、模型选择和费用计算
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// Anthropic Messages API Endpoint
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// API 版本号，Anthropic 要求每个请求都带
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider Anthropic 适配器
// 与 OpenAI 不同，Anthropic 要求把 system 提示从消息列表中拆出来，
// 单独作为顶层 system 字段；usage 只给输入/输出两个值，总数要自己加
type AnthropicProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewAnthropicProvider 创建 Anthropic 适配器
func NewAnthropicProvider(apiKey string, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:   apiKey,
		endpoint: anthropicEndpoint,
		client:   client,
	}
}

// Name 返回提供商标识
func (p *AnthropicProvider) Name() ProviderID {
	return ProviderAnthropic
}

// anthropicRequest Anthropic API 请求结构
type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// anthropicResponse Anthropic API 响应结构
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete 调用 Anthropic Messages API
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	// 拆分 system 提示和对话消息
	var system string
	turns := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = msg.Content
			continue
		}
		turns = append(turns, msg)
	}

	body := anthropicRequest{
		Model:       string(req.Model),
		System:      system,
		Messages:    turns,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError(ProviderAnthropic, req.Model, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, newProviderError(ProviderAnthropic, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(ProviderAnthropic, req.Model, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(ProviderAnthropic, req.Model,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, newProviderError(ProviderAnthropic, req.Model,
			fmt.Errorf("failed to parse response: %w", err))
	}

	if apiResp.Error != nil {
		return nil, newProviderError(ProviderAnthropic, req.Model,
			fmt.Errorf("%s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	if len(apiResp.Content) == 0 {
		return nil, newProviderError(ProviderAnthropic, req.Model, errors.New("no content returned"))
	}

	// total_tokens 需要手动相加
	usage := Usage{
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
		TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
	}

	return &Completion{
		Content:  apiResp.Content[0].Text,
		Model:    req.Model,
		Provider: ProviderAnthropic,
		Usage:    usage,
	}, nil
}
