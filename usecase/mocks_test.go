package usecase

import (
	"context"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"

	"github.com/stretchr/testify/mock"
)

type MockFactory struct {
	mock.Mock
}

func (m *MockFactory) Create(ctx context.Context, platform, userID string) (repository.IPublisher, error) {
	args := m.Called(ctx, platform, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.IPublisher), args.Error(1)
}

func (m *MockFactory) Manager(ctx context.Context, platform, userID string) (repository.ITokenManager, error) {
	args := m.Called(ctx, platform, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.ITokenManager), args.Error(1)
}

func (m *MockFactory) Platforms() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockFactory) Forget(platform, userID string) {
	m.Called(platform, userID)
}

type MockPublisher struct {
	mock.Mock
	platform string
}

func (m *MockPublisher) Platform() string { return m.platform }

func (m *MockPublisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	return m.Called(ctx, req).Get(0).(*model.PublishResult)
}

func (m *MockPublisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	return m.Called(ctx, externalID, req).Get(0).(*model.PublishResult)
}

func (m *MockPublisher) Delete(ctx context.Context, externalID string) (bool, error) {
	args := m.Called(ctx, externalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPublisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Metrics), args.Error(1)
}

func (m *MockPublisher) VerifyAuth(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) GetAccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) IsExpired() bool {
	return m.Called().Bool(0)
}

func (m *MockTokenManager) Refresh(ctx context.Context) (*model.TokenGrant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TokenGrant), args.Error(1)
}

func (m *MockTokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenManager) Credential() model.Credential {
	return m.Called().Get(0).(model.Credential)
}
