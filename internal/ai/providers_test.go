package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderComplete(t *testing.T) {
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "你好"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 7,
				"total_tokens":      19,
			},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.Client())
	p.endpoint = server.URL

	got, err := p.Complete(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful"},
			{Role: RoleUser, Content: "hi"},
		},
		Model:       ModelGPT35,
		Temperature: 0.7,
		MaxTokens:   100,
	})
	require.NoError(t, err)

	// OpenAI 接受带内联 system 角色的扁平消息列表
	assert.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
	assert.Equal(t, "gpt-3.5-turbo", gotReq.Model)

	assert.Equal(t, "你好", got.Content)
	assert.Equal(t, ProviderOpenAI, got.Provider)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}, got.Usage)
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.Client())
	p.endpoint = server.URL

	_, err := p.Complete(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Model:    ModelGPT35,
	})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ProviderOpenAI, perr.Provider)
	assert.Equal(t, ModelGPT35, perr.Model)
}

func TestAnthropicProviderComplete(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "回复"},
			},
			"usage": map[string]int{
				"input_tokens":  30,
				"output_tokens": 11,
			},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider("test-key", server.Client())
	p.endpoint = server.URL

	got, err := p.Complete(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
		Model:     ModelClaude3Opus,
		MaxTokens: 100,
	})
	require.NoError(t, err)

	// system 提示被拆到顶层字段，消息列表里只剩对话轮次
	assert.Equal(t, "You are helpful", gotReq.System)
	assert.Len(t, gotReq.Messages, 2)

	assert.Equal(t, "回复", got.Content)
	// Anthropic 不回 total，适配器自己相加
	assert.Equal(t, Usage{PromptTokens: 30, CompletionTokens: 11, TotalTokens: 41}, got.Usage)
}

func TestGoogleProviderComplete(t *testing.T) {
	var gotReq googleRequest
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "answer"}},
				}},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     8,
				"candidatesTokenCount": 4,
				"totalTokenCount":      12,
			},
		})
	}))
	defer server.Close()

	p := NewGoogleProvider("test-key", server.Client())
	p.baseURL = server.URL

	got, err := p.Complete(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleUser, Content: "question"},
			{Role: RoleAssistant, Content: "earlier answer"},
			{Role: RoleUser, Content: "followup"},
		},
		Model:     ModelGeminiPro,
		MaxTokens: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-pro:generateContent?key=test-key", gotPath)

	// 整个对话拼接成一段带角色前缀的文本
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 1)
	assert.Equal(t,
		"User: question\n\nAssistant: earlier answer\n\nUser: followup",
		gotReq.Contents[0].Parts[0].Text)

	assert.Equal(t, "answer", got.Content)
	assert.Equal(t, Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12}, got.Usage)
}

func TestGoogleProviderNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	p := NewGoogleProvider("test-key", server.Client())
	p.baseURL = server.URL

	_, err := p.Complete(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Model:    ModelGeminiPro,
	})
	assert.Error(t, err)
}
