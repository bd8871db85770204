// Package websocket 提供 WebSocket 通信功能
// 实现对话会话的实时双向通信
package websocket

import (
	"time"

	"github.com/google/uuid"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypePing        = "ping"         // 心跳
	TypeJoinSession = "join_session" // 加入会话房间
	TypeSendMessage = "send_message" // 发送对话消息
	TypeTyping      = "typing"       // 正在输入

	// 服务端 → 客户端
	TypePong          = "pong"           // 心跳响应
	TypeJoinedSession = "joined_session" // 已加入会话
	TypeMessageSaved  = "message_saved"  // 用户消息已入库
	TypeAIThinking    = "ai_thinking"    // AI 开始处理
	TypeAIResponse    = "ai_response"    // AI 回复完成
	TypeUserTyping    = "user_typing"    // 会话内其他成员正在输入

	// 通用
	TypeError = "error" // 错误消息
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload"`              // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 消息ID，用于追踪
}

// NewMessage 创建新消息
// 自动分配消息 ID 和时间戳
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		MessageID: uuid.NewString(),
	}
}

// ==================== Payload 类型定义 ====================

// JoinSessionPayload 加入会话 Payload
// 客户端请求加入会话房间时使用
type JoinSessionPayload struct {
	SessionID int64 `json:"session_id"` // 目标会话ID
}

// JoinedSessionPayload 已加入会话 Payload
type JoinedSessionPayload struct {
	SessionID int64 `json:"session_id"` // 会话ID
}

// SendMessagePayload 发送对话消息 Payload
type SendMessagePayload struct {
	SessionID    int64    `json:"session_id,omitempty"`    // 会话ID（可选，默认当前房间）
	Content      string   `json:"content"`                 // 消息内容
	Model        string   `json:"model,omitempty"`         // 指定模型（可选）
	Temperature  *float64 `json:"temperature,omitempty"`   // 温度参数（可选）
	MaxTokens    *int     `json:"max_tokens,omitempty"`    // 最大 token 数（可选）
	SystemPrompt string   `json:"system_prompt,omitempty"` // 系统提示词（可选）
	TaskType     string   `json:"task_type,omitempty"`     // 任务类型（可选）
}

// AIThinkingPayload AI 处理中 Payload
type AIThinkingPayload struct {
	SessionID int64 `json:"session_id"` // 会话ID
}

// TypingPayload 正在输入 Payload
type TypingPayload struct {
	SessionID int64 `json:"session_id,omitempty"` // 会话ID（可选，默认当前房间）
}

// UserTypingPayload 其他成员正在输入 Payload
type UserTypingPayload struct {
	SessionID int64  `json:"session_id"` // 会话ID
	UserID    int64  `json:"user_id"`    // 正在输入的用户ID
	Username  string `json:"username"`   // 正在输入的用户名
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code      int    `json:"code"`                 // 错误码
	Message   string `json:"message"`              // 错误信息
	SessionID int64  `json:"session_id,omitempty"` // 相关会话ID（可选）
}
