// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/middleware"
	"ai-pc-server/internal/service"
	"ai-pc-server/pkg/response"
)

// AIHandler AI 对话请求处理器
type AIHandler struct {
	completionService *service.CompletionService
	router            *ai.Router
}

// NewAIHandler 创建 AIHandler 实例
func NewAIHandler(completionService *service.CompletionService, router *ai.Router) *AIHandler {
	return &AIHandler{
		completionService: completionService,
		router:            router,
	}
}

// ProcessMessage 处理一次对话
// @Summary 处理一次对话
// @Description 发送用户消息并返回 AI 回复，未指定会话时自动新建
// @Tags AI
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CompletionRequest true "对话请求"
// @Success 200 {object} response.Response{data=service.CompletionResponse}
// @Router /api/v1/ai/process [post]
func (h *AIHandler) ProcessMessage(c *gin.Context) {
	var req service.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	result, err := h.completionService.ProcessMessage(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.SessionNotFound(c)
		case errors.Is(err, service.ErrAIProcessing):
			response.AIFailed(c, "AI 处理失败，请稍后重试")
		default:
			response.InternalError(c, "处理失败")
		}
		return
	}

	response.Success(c, result)
}

// modelInfo 模型列表的响应项
type modelInfo struct {
	Name          string   `json:"name"`            // 模型名
	Provider      string   `json:"provider"`        // 所属提供商
	Strengths     []string `json:"strengths"`       // 擅长的任务类型
	ContextWindow int      `json:"context_window"`  // 上下文窗口（token）
	Available     bool     `json:"available"`       // 提供商凭证是否已配置
}

// ListModels 获取可用模型列表
// @Summary 获取可用模型列表
// @Description 返回能力表中的全部模型及其可用状态
// @Tags AI
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/ai/models [get]
func (h *AIHandler) ListModels(c *gin.Context) {
	models := ai.Models()
	result := make([]modelInfo, 0, len(models))
	for _, m := range models {
		info, _ := ai.Capability(m)
		result = append(result, modelInfo{
			Name:          string(m),
			Provider:      string(info.Provider),
			Strengths:     info.Strengths,
			ContextWindow: info.ContextWindow,
			Available:     h.router.IsAvailable(info.Provider),
		})
	}

	response.Success(c, gin.H{"models": result})
}
