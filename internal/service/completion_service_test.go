package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/util"
)

// testDBSeq 给每个测试数据库一个唯一名字
var testDBSeq atomic.Int64

// newTestDB 创建内存 SQLite 数据库并迁移表结构
// 使用 cache=shared 的命名内存库：普通 ":memory:" 下连接池的每个连接
// 都是一个独立的空库，事务占用一个连接时其他查询会看不到已迁移的表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}))
	return db
}

// newTestUser 插入测试用户
func newTestUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()

	user := &model.User{
		Username:         username,
		PasswordHash:     "x",
		PreferredAIModel: string(ai.ModelGPT35),
		Status:           1,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// stubRouter 可编程的 ModelRouter 桩实现
type stubRouter struct {
	selected    ai.Model               // SelectModel 固定返回的模型
	fallback    ai.Model               // FallbackModel 返回的模型
	hasFallback bool                   // 是否存在回退
	errs        map[ai.Model]error     // 指定模型调用失败
	lastReq     *ai.Request            // 最近一次 Generate 收到的请求
	calls       []ai.Model             // Generate 的调用顺序
	usage       ai.Usage               // 成功时返回的用量
}

func (s *stubRouter) SelectModel(string, int) ai.Model {
	return s.selected
}

func (s *stubRouter) Generate(_ context.Context, req *ai.Request) (*ai.Completion, error) {
	s.lastReq = req
	s.calls = append(s.calls, req.Model)
	if err, ok := s.errs[req.Model]; ok {
		return nil, err
	}
	info, _ := ai.Capability(req.Model)
	return &ai.Completion{
		Content:  "stub answer",
		Model:    req.Model,
		Provider: info.Provider,
		Usage:    s.usage,
	}, nil
}

func (s *stubRouter) FallbackModel(ai.Model) (ai.Model, bool) {
	if !s.hasFallback {
		return "", false
	}
	return s.fallback, true
}

// recordNotifier 记录事件顺序的 Notifier 桩实现
type recordNotifier struct {
	events []string
}

func (n *recordNotifier) NotifyMessageSaved(int64, *MessageResponse)  { n.events = append(n.events, "message_saved") }
func (n *recordNotifier) NotifyThinking(int64)                       { n.events = append(n.events, "ai_thinking") }
func (n *recordNotifier) NotifyCompletion(int64, *CompletionResponse) { n.events = append(n.events, "ai_response") }
func (n *recordNotifier) NotifyFailure(int64, string)                { n.events = append(n.events, "error") }

// newCompletionService 组装待测服务
func newCompletionService(db *gorm.DB, router ModelRouter) *CompletionService {
	return NewCompletionService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		router,
	)
}

func TestProcessMessageNewSession(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{
		selected: ai.ModelGPT35,
		usage:    ai.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	svc := newCompletionService(db, router)

	resp, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{
		Message: "你好，帮我写一段代码",
	})
	require.NoError(t, err)
	require.NotZero(t, resp.SessionID)
	assert.Equal(t, "stub answer", resp.Content)
	assert.Equal(t, string(ai.ModelGPT35), resp.Model)

	// 会话被惰性创建，标题取用户消息，模型取用户偏好
	var session model.Session
	require.NoError(t, db.First(&session, resp.SessionID).Error)
	require.NotNil(t, session.Title)
	assert.Equal(t, "你好，帮我写一段代码", *session.Title)
	assert.Equal(t, string(ai.ModelGPT35), session.AIModel)

	// 一轮成功对话：消息数 +2，token 累加，费用大于 0
	assert.Equal(t, 2, session.TotalMessages)
	assert.Equal(t, 30, session.TotalTokensUsed)
	assert.Greater(t, session.TotalCost, int64(0))

	var messages []model.Message
	require.NoError(t, db.Where("session_id = ?", resp.SessionID).Order("id").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, session.TotalCost, messages[1].Cost)
}

func TestProcessMessageLongTitleTruncated(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{selected: ai.ModelGPT35}
	svc := newCompletionService(db, router)

	long := ""
	for i := 0; i < 20; i++ {
		long += "0123456789"
	}
	resp, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{Message: long})
	require.NoError(t, err)

	var session model.Session
	require.NoError(t, db.First(&session, resp.SessionID).Error)
	require.NotNil(t, session.Title)
	assert.Equal(t, util.TruncateString(long, maxSessionTitleLen), *session.Title)
	assert.Len(t, *session.Title, maxSessionTitleLen)
}

func TestProcessMessageContextAssembly(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{
		selected: ai.ModelGPT35,
		usage:    ai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}
	svc := newCompletionService(db, router)

	// 先发一轮建立会话
	first, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{Message: "round 0"})
	require.NoError(t, err)
	sessionID := first.SessionID

	// 再塞入大量历史消息，夹杂 system 和 error 角色
	for i := 0; i < 8; i++ {
		require.NoError(t, db.Create(&model.Message{
			SessionID: sessionID, UserID: user.ID,
			Role: model.MessageRoleUser, Type: model.MessageTypeText, Content: "question",
		}).Error)
		require.NoError(t, db.Create(&model.Message{
			SessionID: sessionID, UserID: user.ID,
			Role: model.MessageRoleAssistant, Type: model.MessageTypeText, Content: "answer",
		}).Error)
	}
	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, UserID: user.ID,
		Role: model.MessageRoleSystem, Type: model.MessageTypeText, Content: "stale system",
	}).Error)
	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, UserID: user.ID,
		Role: model.MessageRoleError, Type: model.MessageTypeText, Content: "Error: boom",
	}).Error)

	_, err = svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{
		Message:      "latest question",
		SessionID:    &sessionID,
		SystemPrompt: "fresh prompt",
	})
	require.NoError(t, err)

	req := router.lastReq
	require.NotNil(t, req)

	// 系统提示只来自本次请求，且在最前面
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, ai.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "fresh prompt", req.Messages[0].Content)

	// system 之外只保留最近 10 轮 user/assistant
	turns := req.Messages[1:]
	assert.Len(t, turns, 10)
	for _, m := range turns {
		assert.Contains(t, []string{ai.RoleUser, ai.RoleAssistant}, m.Role)
		assert.NotEqual(t, "stale system", m.Content)
		assert.NotEqual(t, "Error: boom", m.Content)
	}

	// 刚落库的用户消息在上下文的最后
	assert.Equal(t, "latest question", turns[len(turns)-1].Content)
}

func TestProcessMessageFallback(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{
		selected:    ai.ModelGPT4,
		fallback:    ai.ModelGPT35,
		hasFallback: true,
		errs:        map[ai.Model]error{ai.ModelGPT4: errors.New("upstream down")},
		usage:       ai.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	svc := newCompletionService(db, router)

	resp, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{Message: "hi"})
	require.NoError(t, err)

	// 主模型失败后只尝试一次回退
	assert.Equal(t, []ai.Model{ai.ModelGPT4, ai.ModelGPT35}, router.calls)
	assert.Equal(t, string(ai.ModelGPT35), resp.Model)

	// 只有一条助手消息，记录的是回退模型
	var messages []model.Message
	require.NoError(t, db.Where("session_id = ? AND role = ?", resp.SessionID, model.MessageRoleAssistant).Find(&messages).Error)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].AIModel)
	assert.Equal(t, string(ai.ModelGPT35), *messages[0].AIModel)
}

func TestProcessMessageDoubleFailure(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")

	// 先用一轮成功对话建立会话
	okRouter := &stubRouter{
		selected: ai.ModelGPT35,
		usage:    ai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}
	svc := newCompletionService(db, okRouter)
	first, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{Message: "hi"})
	require.NoError(t, err)
	sessionID := first.SessionID

	var before model.Session
	require.NoError(t, db.First(&before, sessionID).Error)

	// 主模型和回退都失败
	badRouter := &stubRouter{
		selected:    ai.ModelGPT4,
		fallback:    ai.ModelGPT35,
		hasFallback: true,
		errs: map[ai.Model]error{
			ai.ModelGPT4:  errors.New("primary down"),
			ai.ModelGPT35: errors.New("fallback down"),
		},
	}
	svc = newCompletionService(db, badRouter)

	_, err = svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{
		Message:   "doomed",
		SessionID: &sessionID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAIProcessing)

	// 对话轮次事务回滚：统计不变，用户消息没有留下
	var after model.Session
	require.NoError(t, db.First(&after, sessionID).Error)
	assert.Equal(t, before.TotalMessages, after.TotalMessages)
	assert.Equal(t, before.TotalCost, after.TotalCost)

	var userCount int64
	require.NoError(t, db.Model(&model.Message{}).
		Where("session_id = ? AND role = ? AND content = ?", sessionID, model.MessageRoleUser, "doomed").
		Count(&userCount).Error)
	assert.Zero(t, userCount)

	// 失败在独立事务中留下一条 error 消息
	var errMessages []model.Message
	require.NoError(t, db.Where("session_id = ? AND role = ?", sessionID, model.MessageRoleError).Find(&errMessages).Error)
	require.Len(t, errMessages, 1)
	assert.Contains(t, errMessages[0].Content, "Error:")
	assert.Zero(t, errMessages[0].Cost)
}

func TestProcessMessageFailureOnNewSession(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{
		selected:    ai.ModelGPT4,
		fallback:    ai.ModelGPT35,
		hasFallback: true,
		errs: map[ai.Model]error{
			ai.ModelGPT4:  errors.New("primary down"),
			ai.ModelGPT35: errors.New("fallback down"),
		},
	}
	svc := newCompletionService(db, router)

	_, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{
		Message: "doomed from the start",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAIProcessing)

	// 惰性新建的会话随事务回滚，不能留下指向它的 error 消息
	var sessionCount int64
	require.NoError(t, db.Model(&model.Session{}).Count(&sessionCount).Error)
	assert.Zero(t, sessionCount)

	var messageCount int64
	require.NoError(t, db.Model(&model.Message{}).Count(&messageCount).Error)
	assert.Zero(t, messageCount)
}

func TestProcessMessageSessionOwnership(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, "alice")
	intruder := newTestUser(t, db, "bob")
	router := &stubRouter{selected: ai.ModelGPT35}
	svc := newCompletionService(db, router)

	first, err := svc.ProcessMessage(context.Background(), owner.ID, &CompletionRequest{Message: "mine"})
	require.NoError(t, err)
	sessionID := first.SessionID

	// 非本人的会话返回不存在，且不留下 error 消息
	_, err = svc.ProcessMessage(context.Background(), intruder.ID, &CompletionRequest{
		Message:   "yours",
		SessionID: &sessionID,
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var errCount int64
	require.NoError(t, db.Model(&model.Message{}).
		Where("session_id = ? AND role = ?", sessionID, model.MessageRoleError).
		Count(&errCount).Error)
	assert.Zero(t, errCount)
}

func TestProcessMessageNotifierOrder(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	router := &stubRouter{
		selected: ai.ModelGPT35,
		usage:    ai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}
	svc := newCompletionService(db, router)

	notifier := &recordNotifier{}
	svc.SetNotifier(notifier)

	_, err := svc.ProcessMessage(context.Background(), user.ID, &CompletionRequest{Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"message_saved", "ai_thinking", "ai_response"}, notifier.events)
}
