package service

import (
	"context"
	"errors"
	"time"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/util"
)

// 会话相关的业务错误
var (
	// ErrSessionNotFound 会话不存在或不属于当前用户
	// 对非本人的会话统一返回不存在，避免泄露会话 ID 的存在性
	ErrSessionNotFound = errors.New("会话不存在")
)

// 会话标题的最大长度（超出部分截断）
const maxSessionTitleLen = 50

// SessionService 会话服务
// 处理会话的创建、查询、结束和删除
type SessionService struct {
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Title       string   `json:"title" binding:"omitempty,max=200"`             // 会话标题（可选）
	Description string   `json:"description" binding:"omitempty,max=500"`       // 会话描述（可选）
	AIModel     string   `json:"ai_model" binding:"omitempty,max=50"`           // AI 模型（可选，默认用户偏好）
	Temperature *float64 `json:"temperature" binding:"omitempty,min=0,max=1"`   // 温度参数 0~1
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,min=100,max=8000"` // 最大 Token 数
}

// SessionResponse 会话响应
type SessionResponse struct {
	ID              int64      `json:"id"`
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	AIModel         string     `json:"ai_model"`
	Temperature     float64    `json:"temperature"`
	MaxTokens       int        `json:"max_tokens"`
	IsActive        bool       `json:"is_active"`
	TotalMessages   int        `json:"total_messages"`
	TotalTokensUsed int        `json:"total_tokens_used"`
	TotalCost       float64    `json:"total_cost"` // 美元
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
}

// toSessionResponse 将会话模型转换为响应结构
// 温度从整数（0~10）还原为 0~1 的小数，费用从美分换算为美元
func toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		AIModel:         s.AIModel,
		Temperature:     float64(s.Temperature) / 10,
		MaxTokens:       s.MaxTokens,
		IsActive:        s.IsActive,
		TotalMessages:   s.TotalMessages,
		TotalTokensUsed: s.TotalTokensUsed,
		TotalCost:       ai.CostInDollars(s.TotalCost),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
	}
}

// CreateSession 创建会话
// 未指定模型时使用用户的偏好模型
func (s *SessionService) CreateSession(ctx context.Context, userID int64, req *CreateSessionRequest) (*SessionResponse, error) {
	// 未指定模型时回退到用户偏好
	aiModel := req.AIModel
	if aiModel == "" {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		aiModel = user.PreferredAIModel
	}

	// 温度以 0~10 的整数存储
	temperature := 7
	if req.Temperature != nil {
		temperature = int(*req.Temperature * 10)
	}
	maxTokens := 2000
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	session := &model.Session{
		UserID:      userID,
		AIModel:     aiModel,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		IsActive:    true,
		StartedAt:   time.Now(),
	}
	if req.Title != "" {
		session.Title = util.StringPtr(util.TruncateString(req.Title, maxSessionTitleLen))
	}
	if req.Description != "" {
		session.Description = util.StringPtr(req.Description)
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return toSessionResponse(session), nil
}

// ListSessions 分页查询用户的会话列表
// 按开始时间倒序，最新的会话排在最前
func (s *SessionService) ListSessions(ctx context.Context, userID int64, page, pageSize int, activeOnly bool) ([]*SessionResponse, int64, error) {
	sessions, total, err := s.sessionRepo.GetByUserIDWithPagination(ctx, userID, page, pageSize, activeOnly)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*SessionResponse, 0, len(sessions))
	for i := range sessions {
		result = append(result, toSessionResponse(&sessions[i]))
	}
	return result, total, nil
}

// GetSession 获取单个会话
// 会话不存在或不属于当前用户时返回 ErrSessionNotFound
func (s *SessionService) GetSession(ctx context.Context, userID, sessionID int64) (*SessionResponse, error) {
	session, err := s.getOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

// EndSession 结束会话
// 将会话标记为非活跃并记录结束时间，历史消息保留
func (s *SessionService) EndSession(ctx context.Context, userID, sessionID int64) error {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.End(ctx, sessionID)
}

// DeleteSession 删除会话
// 级联删除会话下的全部消息
func (s *SessionService) DeleteSession(ctx context.Context, userID, sessionID int64) error {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// MessageResponse 消息响应
type MessageResponse struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Type      string    `json:"message_type"`
	Content   string    `json:"content"`
	AIModel   *string   `json:"ai_model"`
	TokensUsed int      `json:"tokens_used"`
	Cost      float64   `json:"cost"` // 美元
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *model.Message) *MessageResponse {
	return &MessageResponse{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Role:       m.Role,
		Type:       m.Type,
		Content:    m.Content,
		AIModel:    m.AIModel,
		TokensUsed: m.TokensUsed,
		Cost:       ai.CostInDollars(m.Cost),
		CreatedAt:  m.CreatedAt,
	}
}

// ListMessages 分页查询会话的消息
// 按创建时间升序，先校验会话归属
func (s *SessionService) ListMessages(ctx context.Context, userID, sessionID int64, page, pageSize int) ([]*MessageResponse, int64, error) {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return nil, 0, err
	}

	messages, total, err := s.messageRepo.GetBySessionIDWithPagination(ctx, sessionID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*MessageResponse, 0, len(messages))
	for i := range messages {
		result = append(result, toMessageResponse(&messages[i]))
	}
	return result, total, nil
}

// getOwnedSession 查询会话并校验归属
func (s *SessionService) getOwnedSession(ctx context.Context, userID, sessionID int64) (*model.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}
