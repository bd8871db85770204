package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/util"
)

// newSessionService 组装待测服务
func newSessionService(db *gorm.DB) *SessionService {
	return NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
	)
}

func TestCreateSessionDefaults(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	svc := newSessionService(db)

	resp, err := svc.CreateSession(context.Background(), user.ID, &CreateSessionRequest{})
	require.NoError(t, err)

	// 未指定参数时：模型取用户偏好，温度 0.7，max_tokens 2000
	assert.Equal(t, user.PreferredAIModel, resp.AIModel)
	assert.Equal(t, 0.7, resp.Temperature)
	assert.Equal(t, 2000, resp.MaxTokens)
	assert.True(t, resp.IsActive)
	assert.Zero(t, resp.TotalMessages)
	assert.Nil(t, resp.Title)
}

func TestCreateSessionExplicit(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	svc := newSessionService(db)

	temp := 0.3
	maxTokens := 4000
	resp, err := svc.CreateSession(context.Background(), user.ID, &CreateSessionRequest{
		Title:       "代码审查",
		AIModel:     "claude-3-opus-20240229",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Title)
	assert.Equal(t, "代码审查", *resp.Title)
	assert.Equal(t, "claude-3-opus-20240229", resp.AIModel)
	assert.Equal(t, 0.3, resp.Temperature)
	assert.Equal(t, 4000, resp.MaxTokens)
}

func TestListSessionsOrderAndFilter(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	svc := newSessionService(db)

	// 三个会话，开始时间依次错开
	base := time.Now().Add(-time.Hour)
	for i, title := range []string{"first", "second", "third"} {
		session := &model.Session{
			UserID:    user.ID,
			Title:     util.StringPtr(title),
			AIModel:   "gpt-3.5-turbo",
			IsActive:  i != 0, // first 已结束
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(session).Error)
	}

	// 默认返回全部，按开始时间倒序
	sessions, total, err := svc.ListSessions(context.Background(), user.ID, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, sessions, 3)
	assert.Equal(t, "third", *sessions[0].Title)
	assert.Equal(t, "first", *sessions[2].Title)

	// activeOnly 过滤掉已结束的会话
	active, total, err := svc.ListSessions(context.Background(), user.ID, 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, active, 2)

	// 分页
	page2, _, err := svc.ListSessions(context.Background(), user.ID, 2, 2, false)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestGetSessionOwnership(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, "alice")
	intruder := newTestUser(t, db, "bob")
	svc := newSessionService(db)

	created, err := svc.CreateSession(context.Background(), owner.ID, &CreateSessionRequest{})
	require.NoError(t, err)

	// 本人可见
	got, err := svc.GetSession(context.Background(), owner.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// 非本人统一返回不存在，不暴露会话的存在性
	_, err = svc.GetSession(context.Background(), intruder.ID, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 不存在的 ID 同样返回不存在
	_, err = svc.GetSession(context.Background(), owner.ID, 99999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndSession(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	svc := newSessionService(db)

	created, err := svc.CreateSession(context.Background(), user.ID, &CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(context.Background(), user.ID, created.ID))

	var session model.Session
	require.NoError(t, db.First(&session, created.ID).Error)
	assert.False(t, session.IsActive)
	assert.NotNil(t, session.EndedAt)
}

func TestDeleteSessionCascade(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	svc := newSessionService(db)

	created, err := svc.CreateSession(context.Background(), user.ID, &CreateSessionRequest{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&model.Message{
			SessionID: created.ID, UserID: user.ID,
			Role: model.MessageRoleUser, Type: model.MessageTypeText, Content: "msg",
		}).Error)
	}

	require.NoError(t, svc.DeleteSession(context.Background(), user.ID, created.ID))

	// 会话和消息都被删除，没有孤儿消息
	var sessionCount, messageCount int64
	require.NoError(t, db.Model(&model.Session{}).Where("id = ?", created.ID).Count(&sessionCount).Error)
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", created.ID).Count(&messageCount).Error)
	assert.Zero(t, sessionCount)
	assert.Zero(t, messageCount)
}

func TestListMessages(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "alice")
	intruder := newTestUser(t, db, "bob")
	svc := newSessionService(db)

	created, err := svc.CreateSession(context.Background(), user.ID, &CreateSessionRequest{})
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, db.Create(&model.Message{
			SessionID: created.ID, UserID: user.ID,
			Role: model.MessageRoleUser, Type: model.MessageTypeText, Content: content,
		}).Error)
	}

	// 按时间正序
	messages, total, err := svc.ListMessages(context.Background(), user.ID, created.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "three", messages[2].Content)

	// 非本人不可见
	_, _, err = svc.ListMessages(context.Background(), intruder.ID, created.ID, 1, 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
