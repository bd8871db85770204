// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// Session 会话模型
// 对应数据库表 ai_sessions
// 表示用户与 AI 的一次对话会话
// 一个用户可以有多个会话，类似于聊天应用中的对话窗口
type Session struct {
	// ID 会话唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，外键关联 users.id
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// Title 会话标题，可选
	// 惰性创建的会话使用首条消息的前 50 个字符
	Title *string `gorm:"size:255" json:"title,omitempty"`

	// Description 会话描述，可选
	Description *string `gorm:"type:text" json:"description,omitempty"`

	// AIModel 会话使用的 AI 模型
	AIModel string `gorm:"size:50;not null" json:"ai_model"`

	// Temperature 温度参数
	// 为了避免浮点误差，存储为 0-10 的整数（0.7 存为 7）
	Temperature int `gorm:"default:7" json:"temperature"`

	// MaxTokens 单次回复的最大 token 数
	MaxTokens int `gorm:"default:2000" json:"max_tokens"`

	// IsActive 会话是否活跃
	// false 表示会话已结束，不再出现在默认列表中
	IsActive bool `gorm:"default:true;index" json:"is_active"`

	// TotalMessages 累计消息数
	// 每次成功的完整对话（用户 + 助手）加 2
	// 只在追加消息的同一事务中更新，单调不减
	TotalMessages int `gorm:"default:0" json:"total_messages"`

	// TotalTokensUsed 累计消耗的 token 数，单调不减
	TotalTokensUsed int `gorm:"default:0" json:"total_tokens_used"`

	// TotalCost 累计费用，单位为美分
	// 整数存储避免浮点累加误差，单调不减
	TotalCost int64 `gorm:"default:0" json:"total_cost"`

	// Context 会话级上下文，JSON 字符串，可选
	Context *string `gorm:"type:json" json:"context,omitempty"`

	// Settings 会话级设置，JSON 字符串，可选
	Settings *string `gorm:"type:json" json:"settings,omitempty"`

	// StartedAt 会话开始时间
	StartedAt time.Time `gorm:"autoCreateTime" json:"started_at"`

	// EndedAt 会话结束时间
	// 仅当 IsActive 为 false 时有值
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// User 所属用户（多对一关系）
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// Messages 会话中的所有消息（一对多关系）
	// 删除会话时级联删除
	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "ai_sessions"
}
