package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage"
)

// CreateUser 创建目录用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = domain.NormalizeAddress(user.Email)
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", domain.NormalizeAddress(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUsersByEmails 批量查询目录用户，外部写入的邮箱可能含大写
func (s *Store) FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	emails = storage.NormalizeEmails(emails)
	if len(emails) == 0 {
		return []domain.User{}, nil
	}

	var users []domain.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) IN ?", emails).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("find users by email: %w", err)
	}
	return users, nil
}
