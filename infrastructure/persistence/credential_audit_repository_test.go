package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"content-publisher/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCredentialStore struct{ mock.Mock }

func (m *MockCredentialStore) Get(ctx context.Context, userID, platform string) (*model.Credential, error) {
	args := m.Called(ctx, userID, platform)
	c, _ := args.Get(0).(*model.Credential)
	return c, args.Error(1)
}

func (m *MockCredentialStore) Upsert(ctx context.Context, cred *model.Credential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *MockCredentialStore) ListByPlatform(ctx context.Context, platform string) ([]*model.Credential, error) {
	args := m.Called(ctx, platform)
	return args.Get(0).([]*model.Credential), args.Error(1)
}

func (m *MockCredentialStore) ListExpiring(ctx context.Context, platform string, before time.Time) ([]*model.Credential, error) {
	args := m.Called(ctx, platform, before)
	return args.Get(0).([]*model.Credential), args.Error(1)
}

type MockCredentialAudit struct{ mock.Mock }

func (m *MockCredentialAudit) Record(ctx context.Context, audit *model.CredentialAudit) error {
	return m.Called(ctx, audit).Error(0)
}

func (m *MockCredentialAudit) History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error) {
	args := m.Called(ctx, userID, platform, limit)
	return args.Get(0).([]model.CredentialAudit), args.Error(1)
}

func TestAuditedCredentialStore_RecordsRotation(t *testing.T) {
	store := new(MockCredentialStore)
	audit := new(MockCredentialAudit)
	ctx := context.Background()

	store.On("Get", ctx, "u1", "youtube").Return(&model.Credential{RefreshToken: "old-refresh"}, nil)
	store.On("Upsert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Credential).Version = 2
	}).Return(nil)
	audit.On("Record", ctx, mock.MatchedBy(func(a *model.CredentialAudit) bool {
		return a.Version == 2 && a.RotatedRefresh && a.AccessTokenMasked == "ya29…(10)"
	})).Return(nil)

	audited := NewAuditedCredentialStore(store, audit)
	err := audited.Upsert(ctx, &model.Credential{UserID: "u1", Platform: "youtube", AccessToken: "ya29.token", RefreshToken: "new-refresh"})

	assert.NoError(t, err)
	store.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestAuditedCredentialStore_AuditFailureDoesNotFailWrite(t *testing.T) {
	store := new(MockCredentialStore)
	audit := new(MockCredentialAudit)
	ctx := context.Background()

	store.On("Get", ctx, "u1", "wordpress").Return(nil, model.ErrCredentialNotFound)
	store.On("Upsert", ctx, mock.Anything).Return(nil)
	audit.On("Record", ctx, mock.MatchedBy(func(a *model.CredentialAudit) bool { return !a.RotatedRefresh })).
		Return(errors.New("mongo down"))

	err := NewAuditedCredentialStore(store, audit).Upsert(ctx, &model.Credential{UserID: "u1", Platform: "wordpress", AccessToken: "pw"})
	assert.NoError(t, err)
	audit.AssertExpectations(t)
}

func TestAuditedCredentialStore_StoreFailureSkipsAudit(t *testing.T) {
	store := new(MockCredentialStore)
	audit := new(MockCredentialAudit)
	ctx := context.Background()

	store.On("Get", ctx, "u1", "medium").Return(nil, model.ErrCredentialNotFound)
	store.On("Upsert", ctx, mock.Anything).Return(errors.New("db down"))

	err := NewAuditedCredentialStore(store, audit).Upsert(ctx, &model.Credential{UserID: "u1", Platform: "medium"})
	assert.EqualError(t, err, "db down")
	audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestNewAuditedCredentialStore_NilAuditReturnsStore(t *testing.T) {
	store := new(MockCredentialStore)
	assert.Same(t, store, NewAuditedCredentialStore(store, nil))
}
