package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/util"
)

// ErrAIProcessing AI 调用失败（主模型和备用模型都失败）
var ErrAIProcessing = errors.New("AI 处理失败")

// 上下文组装时保留的最近对话轮数
const contextWindowTurns = 10

// ModelRouter 编排层依赖的模型路由能力
// 生产环境由 *ai.Router 实现，测试中可以替换为桩实现
type ModelRouter interface {
	// SelectModel 根据任务类型和上下文长度选择模型
	SelectModel(taskType string, contextLength int) ai.Model

	// Generate 调用指定模型生成补全
	Generate(ctx context.Context, req *ai.Request) (*ai.Completion, error)

	// FallbackModel 返回失败模型对应的备用模型
	// 没有可用备用模型时第二个返回值为 false
	FallbackModel(failed ai.Model) (ai.Model, bool)
}

// Notifier 对话事件的实时推送接口
// 由 websocket.Hub 实现，推送失败只影响实时性，不影响数据落库
type Notifier interface {
	// NotifyMessageSaved 用户消息已入库
	NotifyMessageSaved(sessionID int64, message *MessageResponse)

	// NotifyThinking AI 开始处理
	NotifyThinking(sessionID int64)

	// NotifyCompletion AI 回复完成
	NotifyCompletion(sessionID int64, resp *CompletionResponse)

	// NotifyFailure AI 处理失败
	NotifyFailure(sessionID int64, errMsg string)
}

// noopNotifier 空实现，未接入 WebSocket 时使用
type noopNotifier struct{}

func (noopNotifier) NotifyMessageSaved(int64, *MessageResponse)    {}
func (noopNotifier) NotifyThinking(int64)                          {}
func (noopNotifier) NotifyCompletion(int64, *CompletionResponse)   {}
func (noopNotifier) NotifyFailure(int64, string)                   {}

// CompletionService 对话编排服务
// 负责一次完整的对话轮次：解析会话、落库用户消息、组装上下文、
// 调用模型（带回退）、落库助手消息并更新会话统计
type CompletionService struct {
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
	router      ModelRouter
	notifier    Notifier
}

// NewCompletionService 创建 CompletionService 实例
func NewCompletionService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	router ModelRouter,
) *CompletionService {
	return &CompletionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		router:      router,
		notifier:    noopNotifier{},
	}
}

// SetNotifier 注入实时推送实现
// 在 Hub 创建后调用，避免服务层和 WebSocket 层的循环依赖
func (s *CompletionService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// CompletionRequest 一次对话请求
type CompletionRequest struct {
	Message      string   `json:"message" binding:"required,max=10000"`             // 用户消息
	SessionID    *int64   `json:"session_id"`                                       // 会话 ID（为空时新建会话）
	Model        string   `json:"model" binding:"omitempty,max=50"`                 // 指定模型（为空时自动选择）
	Temperature  *float64 `json:"temperature" binding:"omitempty,min=0,max=1"`      // 温度参数
	MaxTokens    *int     `json:"max_tokens" binding:"omitempty,min=100,max=8000"`  // 最大输出 token 数
	SystemPrompt string   `json:"system_prompt" binding:"omitempty,max=2000"`       // 系统提示词
	TaskType     string   `json:"task_type" binding:"omitempty,max=50"`             // 任务类型，影响模型选择
}

// CompletionResponse 一次对话的结果
type CompletionResponse struct {
	SessionID int64    `json:"session_id"` // 会话 ID（新建会话时返回新 ID）
	MessageID int64    `json:"message_id"` // 助手消息 ID
	Content   string   `json:"content"`    // 模型回复
	Model     string   `json:"model"`      // 实际使用的模型
	Provider  string   `json:"provider"`   // 实际使用的提供商
	Usage     ai.Usage `json:"usage"`      // token 用量
	Cost      float64  `json:"cost"`       // 本次费用（美元）
}

// ProcessMessage 处理一次完整的对话轮次
// 用户消息、助手消息和会话统计在同一个事务中提交
// 事务内任何一步失败都会整体回滚，之后在独立事务中记录一条 error 消息
// 参数:
//   - ctx: 上下文
//   - userID: 用户 ID
//   - req: 对话请求
//
// 返回:
//   - *CompletionResponse: 对话结果
//   - error: ErrSessionNotFound / ErrAIProcessing 或数据库错误
func (s *CompletionService) ProcessMessage(ctx context.Context, userID int64, req *CompletionRequest) (*CompletionResponse, error) {
	taskType := req.TaskType
	if taskType == "" {
		taskType = "general"
	}

	var (
		session      *model.Session
		assistantMsg *model.Message
		completion   *ai.Completion
		costCents    int64
	)

	var sessionCreated bool

	err := s.sessionRepo.Transaction(ctx, func(tx *gorm.DB) error {
		// 1. 解析会话：指定了 ID 就校验归属，否则惰性新建
		var err error
		session, sessionCreated, err = s.resolveSessionTx(tx, userID, req)
		if err != nil {
			return err
		}

		// 2. 落库用户消息
		userMsg := &model.Message{
			SessionID: session.ID,
			UserID:    userID,
			Role:      model.MessageRoleUser,
			Type:      model.MessageTypeText,
			Content:   req.Message,
		}
		if err := s.messageRepo.CreateTx(tx, userMsg); err != nil {
			return err
		}
		s.notifier.NotifyMessageSaved(session.ID, toMessageResponse(userMsg))

		// 3. 组装上下文
		// 事务内查询能看到刚落库的用户消息
		history, err := s.messageRepo.GetBySessionIDTx(tx, session.ID)
		if err != nil {
			return err
		}
		aiMessages, contextLength := assembleContext(history, req.SystemPrompt)

		// 4. 调用模型，主模型失败时尝试一次备用模型
		targetModel := ai.Model(req.Model)
		if targetModel == "" {
			targetModel = s.router.SelectModel(taskType, contextLength)
		}
		temperature := float64(session.Temperature) / 10
		if req.Temperature != nil {
			temperature = *req.Temperature
		}
		maxTokens := session.MaxTokens
		if req.MaxTokens != nil {
			maxTokens = *req.MaxTokens
		}

		s.notifier.NotifyThinking(session.ID)

		completion, err = s.invokeWithFallback(ctx, &ai.Request{
			Messages:    aiMessages,
			Model:       targetModel,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAIProcessing, err)
		}

		// 5. 落库助手消息并更新会话统计
		costCents = ai.CalculateCost(completion.Model, completion.Usage)
		assistantMsg = &model.Message{
			SessionID:  session.ID,
			UserID:     userID,
			Role:       model.MessageRoleAssistant,
			Type:       model.MessageTypeText,
			Content:    completion.Content,
			AIModel:    util.StringPtr(string(completion.Model)),
			TokensUsed: completion.Usage.TotalTokens,
			Cost:       costCents,
		}
		if err := s.messageRepo.CreateTx(tx, assistantMsg); err != nil {
			return err
		}
		return s.sessionRepo.IncrementStatsTx(tx, session.ID, 2, completion.Usage.TotalTokens, costCents)
	})

	if err != nil {
		// 会话不存在直接返回，不记录 error 消息
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		// 惰性新建的会话随事务一起回滚，行已不存在，
		// 不能再往它下面挂 error 消息
		if session != nil && !sessionCreated {
			s.recordFailure(userID, session.ID, err)
		}
		return nil, err
	}

	resp := &CompletionResponse{
		SessionID: session.ID,
		MessageID: assistantMsg.ID,
		Content:   completion.Content,
		Model:     string(completion.Model),
		Provider:  string(completion.Provider),
		Usage:     completion.Usage,
		Cost:      ai.CostInDollars(costCents),
	}
	s.notifier.NotifyCompletion(session.ID, resp)
	return resp, nil
}

// resolveSessionTx 在事务中解析会话
// 未指定会话 ID 时惰性新建：标题取用户消息的前 50 个字符，
// 模型取请求指定的模型或用户偏好
// 第二个返回值表示会话是否为本事务内新建
func (s *CompletionService) resolveSessionTx(tx *gorm.DB, userID int64, req *CompletionRequest) (*model.Session, bool, error) {
	if req.SessionID != nil {
		session, err := s.sessionRepo.GetByIDTx(tx, *req.SessionID)
		if err != nil {
			return nil, false, err
		}
		if session == nil || session.UserID != userID {
			return nil, false, ErrSessionNotFound
		}
		return session, false, nil
	}

	aiModel := req.Model
	if aiModel == "" {
		user, err := s.userRepo.GetByID(tx.Statement.Context, userID)
		if err != nil {
			return nil, false, err
		}
		if user == nil {
			return nil, false, ErrUserNotFound
		}
		aiModel = user.PreferredAIModel
	}

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
		Title:       util.StringPtr(util.TruncateString(req.Message, maxSessionTitleLen)),
		AIModel:     aiModel,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		IsActive:    true,
		StartedAt:   time.Now(),
	}
	if err := s.sessionRepo.CreateTx(tx, session); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// assembleContext 从历史消息组装发给模型的上下文
// 只保留 user / assistant 角色的最近 N 轮，system 和 error 消息不进上下文
// 系统提示词只来自本次请求，放在最前面
// 返回消息列表和上下文总字符数（用于模型选择）
func assembleContext(history []model.Message, systemPrompt string) ([]ai.Message, int) {
	var turns []ai.Message
	for i := range history {
		m := &history[i]
		if m.Role != model.MessageRoleUser && m.Role != model.MessageRoleAssistant {
			continue
		}
		turns = append(turns, ai.Message{Role: m.Role, Content: m.Content})
	}
	if len(turns) > contextWindowTurns {
		turns = turns[len(turns)-contextWindowTurns:]
	}

	messages := make([]ai.Message, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, turns...)

	contextLength := 0
	for _, m := range messages {
		contextLength += len(m.Content)
	}
	return messages, contextLength
}

// invokeWithFallback 调用目标模型，失败时尝试一次备用模型
// 备用模型也失败时返回备用模型的错误
func (s *CompletionService) invokeWithFallback(ctx context.Context, req *ai.Request) (*ai.Completion, error) {
	completion, err := s.router.Generate(ctx, req)
	if err == nil {
		return completion, nil
	}

	fallback, ok := s.router.FallbackModel(req.Model)
	if !ok {
		return nil, err
	}
	log.Printf("模型 %s 调用失败，回退到 %s: %v", req.Model, fallback, err)

	fbReq := *req
	fbReq.Model = fallback
	return s.router.Generate(ctx, &fbReq)
}

// recordFailure 在独立事务中记录一条 error 消息并推送失败事件
// 这条消息不计入会话统计
// 记录本身失败时只打日志（双重失败），不再向上传播
func (s *CompletionService) recordFailure(userID, sessionID int64, cause error) {
	errMsg := fmt.Sprintf("Error: %v", cause)
	message := &model.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.MessageRoleError,
		Type:      model.MessageTypeText,
		Content:   errMsg,
	}
	// 使用独立的短超时上下文，原请求的上下文可能已经取消
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.messageRepo.Create(ctx, message); err != nil {
		log.Printf("记录 error 消息失败 session=%d: %v (原始错误: %v)", sessionID, err, cause)
	}
	s.notifier.NotifyFailure(sessionID, errMsg)
}
