// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-pc-server/internal/middleware"
	"ai-pc-server/internal/service"
	"ai-pc-server/pkg/response"
)

// SessionHandler 会话请求处理器
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// CreateSession 创建会话
// @Summary 创建会话
// @Tags 会话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CreateSessionRequest true "会话信息"
// @Success 200 {object} response.Response{data=service.SessionResponse}
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	result, err := h.sessionService.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		response.InternalError(c, "创建会话失败")
		return
	}

	response.Created(c, result)
}

// ListSessions 获取会话列表
// @Summary 获取会话列表
// @Description 分页获取当前用户的会话，按开始时间倒序
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 20"
// @Param active_only query bool false "只返回活跃会话"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, pageSize := parsePagination(c)
	activeOnly := c.Query("active_only") == "true"

	sessions, total, err := h.sessionService.ListSessions(c.Request.Context(), userID, page, pageSize, activeOnly)
	if err != nil {
		response.InternalError(c, "获取会话列表失败")
		return
	}

	response.Success(c, gin.H{
		"sessions":  sessions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetSession 获取会话详情
// @Summary 获取会话详情
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} response.Response{data=service.SessionResponse}
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	result, err := h.sessionService.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		if err == service.ErrSessionNotFound {
			response.SessionNotFound(c)
		} else {
			response.InternalError(c, "获取会话失败")
		}
		return
	}

	response.Success(c, result)
}

// EndSession 结束会话
// @Summary 结束会话
// @Description 将会话标记为非活跃，历史消息保留
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/end [post]
func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.sessionService.EndSession(c.Request.Context(), userID, sessionID); err != nil {
		if err == service.ErrSessionNotFound {
			response.SessionNotFound(c)
		} else {
			response.InternalError(c, "结束会话失败")
		}
		return
	}

	response.SuccessWithMessage(c, "会话已结束", nil)
}

// DeleteSession 删除会话
// @Summary 删除会话
// @Description 删除会话及其全部消息
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.sessionService.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		if err == service.ErrSessionNotFound {
			response.SessionNotFound(c)
		} else {
			response.InternalError(c, "删除会话失败")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

// GetMessages 获取会话消息
// @Summary 获取会话消息
// @Description 分页获取会话的消息，按时间正序
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 20"
// @Success 200 {object} response.Response
// @Router /api/v1/sessions/{id}/messages [get]
func (h *SessionHandler) GetMessages(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	page, pageSize := parsePagination(c)

	messages, total, err := h.sessionService.ListMessages(c.Request.Context(), userID, sessionID, page, pageSize)
	if err != nil {
		if err == service.ErrSessionNotFound {
			response.SessionNotFound(c)
		} else {
			response.InternalError(c, "获取消息失败")
		}
		return
	}

	response.Success(c, gin.H{
		"messages":  messages,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// parseSessionID 解析路径中的会话 ID
// 解析失败时写入 400 响应并返回 false
func parseSessionID(c *gin.Context) (int64, bool) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		response.BadRequest(c, "无效的会话 ID")
		return 0, false
	}
	return sessionID, true
}

// parsePagination 解析分页参数，带默认值和上限
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
