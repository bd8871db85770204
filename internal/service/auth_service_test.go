package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/jwt"
)

// newAuthService 组装待测服务
// 注册和登录不依赖 Redis，cache 传 nil
func newAuthService(t *testing.T) (*AuthService, *repository.UserRepository) {
	t.Helper()

	db := newTestDB(t)
	userRepo := repository.NewUserRepository(db)
	jwtService := jwt.NewJWTService("test-secret-at-least-32-characters!!", time.Hour, 24*time.Hour)
	return NewAuthService(userRepo, nil, jwtService), userRepo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterRequest{
		Username: "alice",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.Username)
	assert.NotZero(t, reg.UserID)

	// 重复用户名被拒绝
	_, err = svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "other"})
	assert.ErrorIs(t, err, ErrUserExists)

	// 正确密码登录拿到 Token 对
	login, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, reg.UserID, login.User.ID)

	// 错误密码
	_, err = svc.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrPasswordWrong)

	// 不存在的用户
	_, err = svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPasswordNotStoredInPlaintext(t *testing.T) {
	svc, userRepo := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	user, err := userRepo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.NotEmpty(t, user.PasswordHash)
}

func TestRefreshToken(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	login, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	// Refresh Token 换新的 Token 对
	refreshed, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// Access Token 不能当 Refresh Token 用
	_, err = svc.RefreshToken(ctx, login.AccessToken)
	assert.Error(t, err)
}
