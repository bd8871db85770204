// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ai-pc-server/internal/model"
)

// SessionRepository 会话数据访问层
// 负责会话相关的所有数据库操作
// 会话统计字段（消息数、token 数、费用）只允许通过 IncrementStatsTx
// 在追加消息的同一事务里更新
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 创建新会话
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// CreateTx 在指定事务中创建新会话
// 用于惰性创建会话时和用户消息一起提交
func (r *SessionRepository) CreateTx(tx *gorm.DB, session *model.Session) error {
	return tx.Create(session).Error
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Session: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByIDTx 在指定事务中根据 ID 获取会话
func (r *SessionRepository) GetByIDTx(tx *gorm.DB, id int64) (*model.Session, error) {
	var session model.Session
	err := tx.First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByUserIDWithPagination 分页获取用户的会话
// 按开始时间倒序排列（最近的在前）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//   - activeOnly: 是否只返回活跃会话
//
// 返回:
//   - []model.Session: 会话列表
//   - int64: 总数量（用于计算总页数）
//   - error: 数据库错误
func (r *SessionRepository) GetByUserIDWithPagination(ctx context.Context, userID int64, page, pageSize int, activeOnly bool) ([]model.Session, int64, error) {
	var sessions []model.Session
	var total int64

	// 构建基础查询
	query := r.db.WithContext(ctx).Model(&model.Session{}).Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	// Offset: 跳过的记录数 = (页码 - 1) * 每页数量
	offset := (page - 1) * pageSize
	err := query.
		Order("started_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	return sessions, total, err
}

// IncrementStatsTx 在指定事务中累加会话统计
// 必须和消息追加在同一事务中调用，保证统计和消息记录一致
// 三个统计字段都只增不减
// 参数:
//   - tx: 事务句柄
//   - id: 会话ID
//   - messages: 消息数增量
//   - tokens: token 数增量
//   - costCents: 费用增量（美分）
//
// 返回:
//   - error: 数据库错误
func (r *SessionRepository) IncrementStatsTx(tx *gorm.DB, id int64, messages, tokens int, costCents int64) error {
	return tx.Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_messages":    gorm.Expr("total_messages + ?", messages),
			"total_tokens_used": gorm.Expr("total_tokens_used + ?", tokens),
			"total_cost":        gorm.Expr("total_cost + ?", costCents),
		}).Error
}

// End 结束会话
// 将 is_active 设为 false，并记录结束时间
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - error: 数据库错误
func (r *SessionRepository) End(ctx context.Context, id int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  now,
		}).Error
}

// Delete 删除会话及其所有消息
// 消息和会话在同一事务中删除，不会留下孤儿消息
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - error: 数据库错误
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Session{}, id).Error
	})
}

// Transaction 在一个数据库事务中执行 fn
// fn 返回错误时自动回滚，否则提交
// 编排层用它保证"用户消息 + 助手消息 + 统计更新"的原子性
func (r *SessionRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
