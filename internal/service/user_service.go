package service

import (
	"context"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/pkg/util"
)

// UserService 用户服务
// 处理用户资料查询和偏好设置
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService 创建 UserService 实例
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// GetProfile 获取用户资料
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdatePreferredModel 更新用户的偏好模型
// 只接受能力表中登记过的模型
func (s *UserService) UpdatePreferredModel(ctx context.Context, userID int64, modelName string) error {
	if _, ok := ai.Capability(ai.Model(modelName)); !ok {
		return ErrModelUnknown
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	return s.userRepo.UpdatePreferredModel(ctx, userID, modelName)
}

// ChangePassword 修改密码
// 需要验证旧密码
func (s *UserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !util.CheckPassword(oldPassword, user.PasswordHash) {
		return ErrPasswordWrong
	}

	hash, err := util.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.userRepo.Update(ctx, user)
}
