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
	"strings"
)

// Gemini API 基础地址，模型名拼在路径里
const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleProvider Google Gemini 适配器
// Gemini 的对话接口和另外两家差异最大：这里沿用单轮 generateContent，
// 把整个对话按角色前缀拼接成一段文本发过去
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGoogleProvider 创建 Google Gemini 适配器
func NewGoogleProvider(apiKey string, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  apiKey,
		baseURL: googleBaseURL,
		client:  client,
	}
}

// Name 返回提供商标识
func (p *GoogleProvider) Name() ProviderID {
	return ProviderGoogle
}

// googlePart Gemini 内容片段
type googlePart struct {
	Text string `json:"text"`
}

// googleContent Gemini 内容块
type googleContent struct {
	Parts []googlePart `json:"parts"`
}

// googleRequest Gemini API 请求结构
type googleRequest struct {
	Contents         []googleContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

// googleResponse Gemini API 响应结构
type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildPrompt 把对话消息拼接成带角色前缀的单段文本
// user → "User:"，其余（assistant/system）→ "Assistant:"，段落间空一行
func buildPrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := "Assistant"
		if msg.Role == RoleUser {
			role = "User"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Complete 调用 Gemini generateContent
func (p *GoogleProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	var body googleRequest
	body.Contents = []googleContent{
		{Parts: []googlePart{{Text: buildPrompt(req.Messages)}}},
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError(ProviderGoogle, req.Model, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, req.Model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, newProviderError(ProviderGoogle, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(ProviderGoogle, req.Model, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(ProviderGoogle, req.Model,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp googleResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, newProviderError(ProviderGoogle, req.Model,
			fmt.Errorf("failed to parse response: %w", err))
	}

	if apiResp.Error != nil {
		return nil, newProviderError(ProviderGoogle, req.Model,
			fmt.Errorf("code %d: %s", apiResp.Error.Code, apiResp.Error.Message))
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return nil, newProviderError(ProviderGoogle, req.Model, errors.New("no candidates returned"))
	}

	return &Completion{
		Content:  apiResp.Candidates[0].Content.Parts[0].Text,
		Model:    req.Model,
		Provider: ProviderGoogle,
		Usage: Usage{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
