package repository

import (
	"context"

	"content-publisher/domain/model"
)

// ITokenManager owns the access token of one (user, platform).
type ITokenManager interface {
	// GetAccessToken returns the cached token, refreshing first when the buffered expiry has passed.
	GetAccessToken(ctx context.Context) (string, error)
	IsExpired() bool
	Refresh(ctx context.Context) (*model.TokenGrant, error)
	// VerifyAuth probes the platform with a read-only call.
	VerifyAuth(ctx context.Context) (bool, error)
	Credential() model.Credential
}

// IPublisher is the adapter contract every platform implements. Publish and
// Update report failures inside the result and never return an error.
type IPublisher interface {
	Platform() string
	Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult
	Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult
	Delete(ctx context.Context, externalID string) (bool, error)
	GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error)
	VerifyAuth(ctx context.Context) (bool, error)
}

// IAdapterFactory builds adapters and token managers for a user.
type IAdapterFactory interface {
	Create(ctx context.Context, platform, userID string) (IPublisher, error)
	Manager(ctx context.Context, platform, userID string) (ITokenManager, error)
	Platforms() []string
	// Forget drops the cached token manager so the next call reloads the credential.
	Forget(platform, userID string)
}

// ILocker serialises work on a key across workers.
type ILocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
