package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/relay"
)

// MockRelay 模拟外发中继
type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Name() string {
	return "mock"
}

func (m *MockRelay) Submit(ctx context.Context, env *relay.Envelope) (string, error) {
	args := m.Called(ctx, env)
	return args.String(0), args.Error(1)
}

// MockDirectory 模拟收件人目录
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	args := m.Called(ctx, emails)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

// MockArchive 模拟原文归档
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) SaveRaw(ctx context.Context, messageID string, raw []byte) error {
	args := m.Called(ctx, messageID, raw)
	return args.Error(0)
}

// MockEvents 模拟事件发布
type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) PublishStored(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}
