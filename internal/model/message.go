// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
	MessageRoleSystem    = "system"    // 系统消息
	MessageRoleError     = "error"     // 失败路径记录的错误消息
)

// MessageType 消息类型常量
const (
	MessageTypeText    = "text"    // 文本消息
	MessageTypeVoice   = "voice"   // 语音消息（带转写）
	MessageTypeCommand = "command" // 命令消息
	MessageTypeFile    = "file"    // 文件消息
)

// Message 消息模型
// 对应数据库表 messages
// 存储会话中的每一条消息，创建时间是唯一的排序键
type Message struct {
	// ID 消息唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// SessionID 所属会话ID，外键关联 ai_sessions.id
	SessionID int64 `gorm:"index:ix_message_session_created;not null" json:"session_id"`

	// UserID 消息作者的用户ID
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// Role 消息角色
	// user: 用户发送的消息
	// assistant: AI 助手的响应
	// system: 系统提示
	// error: 失败路径追加的错误记录，不计入 token/费用统计
	Role string `gorm:"size:20;not null" json:"role"`

	// Type 消息类型: text / voice / command / file
	Type string `gorm:"size:20;default:text" json:"type"`

	// Content 消息内容
	// 使用 TEXT 类型存储，可以存储较长的内容
	Content string `gorm:"type:text;not null" json:"content"`

	// AudioURL 语音消息的音频地址，可选
	AudioURL *string `gorm:"size:500" json:"audio_url,omitempty"`

	// Transcription 语音消息的转写文本，可选
	Transcription *string `gorm:"type:text" json:"transcription,omitempty"`

	// AIModel 产生这条消息的模型
	// 仅助手消息有值
	AIModel *string `gorm:"size:50" json:"ai_model,omitempty"`

	// TokensUsed 这条消息消耗的 token 数
	// 非模型调用产生的消息为 0
	TokensUsed int `gorm:"default:0" json:"tokens_used"`

	// Cost 这条消息的费用，单位为美分
	// 不计费的消息为 0
	Cost int64 `gorm:"default:0" json:"cost"`

	// Metadata 附加元数据，JSON 字符串，可选
	Metadata *string `gorm:"type:json" json:"metadata,omitempty"`

	// CreatedAt 消息创建时间，会话内的排序键
	CreatedAt time.Time `gorm:"autoCreateTime;index:ix_message_session_created" json:"created_at"`

	// Session 所属会话（多对一关系）
	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
