// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"ai-pc-server/internal/middleware"
	"ai-pc-server/internal/service"
	"ai-pc-server/pkg/response"
)

// UserHandler 用户请求处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户资料
// @Summary 获取当前用户资料
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=model.User}
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if err == service.ErrUserNotFound {
			response.UserNotFound(c)
		} else {
			response.InternalError(c, "获取用户信息失败")
		}
		return
	}

	response.Success(c, user)
}

// UpdatePreferredModel 更新偏好模型
// @Summary 更新偏好模型
// @Description 设置新会话默认使用的 AI 模型
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/users/me/preferred-model [put]
func (h *UserHandler) UpdatePreferredModel(c *gin.Context) {
	var req struct {
		Model string `json:"model" binding:"required,max=50"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.userService.UpdatePreferredModel(c.Request.Context(), userID, req.Model); err != nil {
		switch err {
		case service.ErrModelUnknown:
			response.BadRequest(c, "不支持的模型: "+req.Model)
		case service.ErrUserNotFound:
			response.UserNotFound(c)
		default:
			response.InternalError(c, "更新失败")
		}
		return
	}

	response.SuccessWithMessage(c, "更新成功", nil)
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/users/me/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.userService.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		switch err {
		case service.ErrPasswordWrong:
			response.PasswordWrong(c)
		case service.ErrUserNotFound:
			response.UserNotFound(c)
		default:
			response.InternalError(c, "修改密码失败")
		}
		return
	}

	response.SuccessWithMessage(c, "修改成功", nil)
}
