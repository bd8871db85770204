// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"ai-pc-server/internal/service"
	"ai-pc-server/pkg/response"
)

// 一次 AI 对话轮次的处理超时
const processTimeout = 120 * time.Second

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有客户端连接
// 2. 管理会话房间（客户端加入/离开）
// 3. 把对话事件推送给房间内的客户端
//
// Hub 同时实现 service.Notifier，编排服务通过它把
// message_saved / ai_thinking / ai_response / error 推给会话房间
type Hub struct {
	// 客户端映射：userID -> []*Client
	// 一个用户可能有多个连接（多设备登录）
	clients map[int64][]*Client

	// 会话房间：sessionID -> 房间内的客户端集合
	rooms map[int64]map[*Client]bool

	// 客户端当前所在的房间：client -> sessionID
	// 一个连接同一时间只在一个房间里，加入新房间会离开旧房间
	clientRoom map[*Client]int64

	// 注册通道
	register chan *Client

	// 注销通道
	unregister chan *Client

	// 互斥锁，保护并发访问
	mu sync.RWMutex

	// 依赖的服务
	sessionService    *service.SessionService
	completionService *service.CompletionService
}

// NewHub 创建 Hub 实例
func NewHub(
	sessionService *service.SessionService,
	completionService *service.CompletionService,
) *Hub {
	return &Hub{
		clients:           make(map[int64][]*Client),
		rooms:             make(map[int64]map[*Client]bool),
		clientRoom:        make(map[*Client]int64),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		sessionService:    sessionService,
		completionService: completionService,
	}
}

// Run 启动 Hub 的主循环
// 应该在单独的 goroutine 中运行
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Register 注册客户端（供外部调用）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（供外部调用）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.userID] = append(h.clients[client.userID], client)
	log.Printf("WebSocket client registered: userID=%d", client.userID)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 从用户连接列表移除
	clients := h.clients[client.userID]
	for i, c := range clients {
		if c == client {
			h.clients[client.userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.clients[client.userID]) == 0 {
		delete(h.clients, client.userID)
	}

	// 离开所在的房间
	h.leaveRoomLocked(client)

	client.Close()
	log.Printf("WebSocket client unregistered: userID=%d", client.userID)
}

// leaveRoomLocked 将客户端移出当前房间
// 调用方必须持有写锁
func (h *Hub) leaveRoomLocked(client *Client) {
	sessionID, ok := h.clientRoom[client]
	if !ok {
		return
	}
	delete(h.clientRoom, client)

	room := h.rooms[sessionID]
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

// joinRoom 将客户端加入会话房间
// 已在其他房间时先离开旧房间
func (h *Hub) joinRoom(client *Client, sessionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoomLocked(client)

	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[sessionID] = room
	}
	room[client] = true
	h.clientRoom[client] = sessionID
}

// currentRoom 返回客户端当前所在的会话房间，没有返回 0
func (h *Hub) currentRoom(client *Client) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRoom[client]
}

// broadcastToSession 向会话房间内的所有客户端发送消息
// exclude 不为 nil 时跳过该客户端
func (h *Hub) broadcastToSession(sessionID int64, msg *Message, exclude *Client) {
	h.mu.RLock()
	room := h.rooms[sessionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		if c != exclude {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// ==================== 消息处理 ====================

// handleJoinSession 处理加入会话请求
// 校验会话归属后把客户端加入房间
func (h *Hub) handleJoinSession(client *Client, msg *Message) {
	var payload JoinSessionPayload
	if err := decodePayload(msg.Payload, &payload); err != nil || payload.SessionID == 0 {
		client.SendError(response.CodeBadRequest, "无效的 join_session 参数", 0)
		return
	}

	// 校验会话存在且属于当前用户
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.sessionService.GetSession(ctx, client.userID, payload.SessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			client.SendError(response.CodeSessionNotFound, "会话不存在", payload.SessionID)
		} else {
			client.SendError(response.CodeInternalError, "加入会话失败", payload.SessionID)
		}
		return
	}

	h.joinRoom(client, payload.SessionID)
	client.SendMessage(NewMessage(TypeJoinedSession, &JoinedSessionPayload{
		SessionID: payload.SessionID,
	}))
}

// handleSendMessage 处理对话消息
// 整个编排流程在独立的 goroutine 中执行，不阻塞读循环
// 中间事件（message_saved / ai_thinking / ai_response）由编排服务
// 通过 Notifier 推回房间
func (h *Hub) handleSendMessage(client *Client, msg *Message) {
	var payload SendMessagePayload
	if err := decodePayload(msg.Payload, &payload); err != nil || payload.Content == "" {
		client.SendError(response.CodeBadRequest, "无效的 send_message 参数", 0)
		return
	}

	// 未指定会话时使用当前房间
	sessionID := payload.SessionID
	if sessionID == 0 {
		sessionID = h.currentRoom(client)
	}
	if sessionID == 0 {
		client.SendError(response.CodeBadRequest, "请先加入会话", 0)
		return
	}

	// 确保发送方在目标会话的房间里，这样才能收到推送的事件
	if h.currentRoom(client) != sessionID {
		h.joinRoom(client, sessionID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		req := &service.CompletionRequest{
			Message:      payload.Content,
			SessionID:    &sessionID,
			Model:        payload.Model,
			Temperature:  payload.Temperature,
			MaxTokens:    payload.MaxTokens,
			SystemPrompt: payload.SystemPrompt,
			TaskType:     payload.TaskType,
		}

		if _, err := h.completionService.ProcessMessage(ctx, client.userID, req); err != nil {
			// AI 失败的推送由编排服务完成，这里只处理会话不存在
			if errors.Is(err, service.ErrSessionNotFound) {
				client.SendError(response.CodeSessionNotFound, "会话不存在", sessionID)
			}
		}
	}()
}

// handleTyping 处理正在输入事件
// 广播给房间内除发送方以外的客户端，不落库
func (h *Hub) handleTyping(client *Client, msg *Message) {
	var payload TypingPayload
	if err := decodePayload(msg.Payload, &payload); err != nil {
		return
	}

	sessionID := payload.SessionID
	if sessionID == 0 {
		sessionID = h.currentRoom(client)
	}
	if sessionID == 0 || h.currentRoom(client) != sessionID {
		return
	}

	h.broadcastToSession(sessionID, NewMessage(TypeUserTyping, &UserTypingPayload{
		SessionID: sessionID,
		UserID:    client.userID,
		Username:  client.username,
	}), client)
}

// decodePayload 把泛型 payload 解析到具体类型
func decodePayload(payload interface{}, dst interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// ==================== service.Notifier 实现 ====================

// NotifyMessageSaved 用户消息已入库，推给会话房间
func (h *Hub) NotifyMessageSaved(sessionID int64, message *service.MessageResponse) {
	h.broadcastToSession(sessionID, NewMessage(TypeMessageSaved, message), nil)
}

// NotifyThinking AI 开始处理，推给会话房间
func (h *Hub) NotifyThinking(sessionID int64) {
	h.broadcastToSession(sessionID, NewMessage(TypeAIThinking, &AIThinkingPayload{
		SessionID: sessionID,
	}), nil)
}

// NotifyCompletion AI 回复完成，推给会话房间
func (h *Hub) NotifyCompletion(sessionID int64, resp *service.CompletionResponse) {
	h.broadcastToSession(sessionID, NewMessage(TypeAIResponse, resp), nil)
}

// NotifyFailure AI 处理失败，推给会话房间
func (h *Hub) NotifyFailure(sessionID int64, errMsg string) {
	h.broadcastToSession(sessionID, NewMessage(TypeError, &ErrorPayload{
		Code:      response.CodeAIFailed,
		Message:   errMsg,
		SessionID: sessionID,
	}), nil)
}
