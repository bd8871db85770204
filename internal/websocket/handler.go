// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ai-pc-server/internal/cache"
	"ai-pc-server/internal/middleware"
	pkgJwt "ai-pc-server/pkg/jwt"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 检查来源（生产环境应该验证）
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 处理 WebSocket 连接
type Handler struct {
	hub        *Hub
	jwtService *pkgJwt.JWTService
	cache      *cache.RedisCache
}

// NewHandler 创建 WebSocket Handler
func NewHandler(hub *Hub, jwtService *pkgJwt.JWTService, redisCache *cache.RedisCache) *Handler {
	return &Handler{
		hub:        hub,
		jwtService: jwtService,
		cache:      redisCache,
	}
}

// HandleChatWS 处理对话 WebSocket 连接
// 路由: GET /ws/chat
// 参数: token (query parameter) - JWT token
//
// 认证失败时仍然完成协议升级，然后以 1008 (policy violation) 关闭，
// 这样客户端能拿到明确的关闭原因而不是一个裸的 HTTP 错误
func (h *Handler) HandleChatWS(c *gin.Context) {
	token := c.Query("token")

	// 先升级再认证
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	claims, authErr := h.authenticate(c, token)
	if authErr != "" {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, authErr)
		conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// 创建客户端并注册
	client := NewClient(h.hub, conn, claims.UserID, claims.Username)
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()

	log.Printf("Chat WebSocket connected: userID=%d", claims.UserID)
}

// authenticate 验证 query 中的 token
// 返回空字符串表示认证通过
func (h *Handler) authenticate(c *gin.Context, token string) (*pkgJwt.UserClaims, string) {
	if token == "" {
		return nil, "需要认证 token"
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		return nil, "无效的 token"
	}

	// 登出后的 token 在黑名单里
	tokenHash := middleware.HashToken(token)
	if h.cache.IsTokenBlacklisted(c.Request.Context(), tokenHash) {
		return nil, "token 已失效"
	}

	return claims, ""
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// WebSocket 路由不走认证中间件（token 在 query 中验证）
	ws := r.Group("/ws")
	{
		ws.GET("/chat", h.HandleChatWS)
	}
}
