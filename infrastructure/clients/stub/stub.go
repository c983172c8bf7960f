// Package stub holds adapters for platforms that are registered but not
// built yet. Every call reports not_implemented.
package stub

import (
	"context"
	"fmt"

	"content-publisher/domain/model"
)

// Publisher answers every operation with ErrNotImplemented.
type Publisher struct {
	platform string
}

func NewPublisher(platform string) *Publisher {
	return &Publisher{platform: platform}
}

func (p *Publisher) Platform() string { return p.platform }

func (p *Publisher) err() error {
	return fmt.Errorf("%w: %s", model.ErrNotImplemented, p.platform)
}

func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	return model.Failed(p.platform, p.err())
}

func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	return model.Failed(p.platform, p.err())
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	return false, p.err()
}

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	return nil, p.err()
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return false, nil
}

// TokenManager stands in for the token lifecycle of a stub platform.
type TokenManager struct {
	cred model.Credential
}

func NewTokenManager(cred model.Credential) *TokenManager {
	return &TokenManager{cred: cred}
}

func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	return "", fmt.Errorf("%w: %s", model.ErrNotImplemented, m.cred.Platform)
}

func (m *TokenManager) IsExpired() bool { return false }

func (m *TokenManager) Refresh(ctx context.Context) (*model.TokenGrant, error) {
	return nil, fmt.Errorf("%w: %s", model.ErrNotImplemented, m.cred.Platform)
}

func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) { return false, nil }

func (m *TokenManager) Credential() model.Credential { return m.cred }
