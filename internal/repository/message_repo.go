// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"

	"ai-pc-server/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
// 消息按 created_at 排序，这是会话内唯一的排序键
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// CreateTx 在指定事务中创建新消息
// 编排层在"对话轮次"事务中使用
func (r *MessageRepository) CreateTx(tx *gorm.DB, message *model.Message) error {
	return tx.Create(message).Error
}

// GetBySessionIDTx 在指定事务中获取会话的所有消息
// 按创建时间正序排列，事务内能看到尚未提交的消息
// 用于上下文组装
func (r *MessageRepository) GetBySessionIDTx(tx *gorm.DB, sessionID int64) ([]model.Message, error) {
	var messages []model.Message
	err := tx.
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// GetBySessionIDWithPagination 分页获取会话的消息
// 用于加载历史消息
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Message: 消息列表（按时间正序）
//   - int64: 总数量
//   - error: 数据库错误
func (r *MessageRepository) GetBySessionIDWithPagination(ctx context.Context, sessionID int64, page, pageSize int) ([]model.Message, int64, error) {
	var messages []model.Message
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Message{}).Where("session_id = ?", sessionID)

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&messages).Error

	return messages, total, err
}

// CountBySessionID 统计会话的消息数量
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//
// 返回:
//   - int64: 消息数量
//   - error: 数据库错误
func (r *MessageRepository) CountBySessionID(ctx context.Context, sessionID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}
