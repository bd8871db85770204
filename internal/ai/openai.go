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

// OpenAI Chat Completions API Endpoint
const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider OpenAI 适配器
// OpenAI 接受带内联 system 角色的扁平消息列表，
// usage 三个字段都直接给出，是三家里请求形状最简单的
type OpenAIProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider 创建 OpenAI 适配器
func NewOpenAIProvider(apiKey string, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:   apiKey,
		endpoint: openAIEndpoint,
		client:   client,
	}
}

// Name 返回提供商标识
func (p *OpenAIProvider) Name() ProviderID {
	return ProviderOpenAI
}

// openAIRequest OpenAI API 请求结构
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// openAIResponse OpenAI API 响应结构
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete 调用 OpenAI Chat Completions
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	body := openAIRequest{
		Model:       string(req.Model),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError(ProviderOpenAI, req.Model, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, newProviderError(ProviderOpenAI, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(ProviderOpenAI, req.Model, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(ProviderOpenAI, req.Model,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, newProviderError(ProviderOpenAI, req.Model,
			fmt.Errorf("failed to parse response: %w", err))
	}

	if apiResp.Error != nil {
		return nil, newProviderError(ProviderOpenAI, req.Model,
			fmt.Errorf("%s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return nil, newProviderError(ProviderOpenAI, req.Model, errors.New("no choices returned"))
	}

	return &Completion{
		Content:  apiResp.Choices[0].Message.Content,
		Model:    req.Model,
		Provider: ProviderOpenAI,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}
