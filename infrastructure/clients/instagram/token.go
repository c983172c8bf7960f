package instagram

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
)

// TokenManager keeps a long-lived Instagram token alive. Instagram extends the
// same token in place, so refresh needs no cross-worker lock.
type TokenManager struct {
	*shared.Lifecycle
	client  *http.Client
	baseURL string
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.Instagram, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{client: client, baseURL: cfg.GraphBaseURL}
	m.Lifecycle = shared.NewLifecycle(cred, store, m.refresh, opts...)
	return m
}

func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	return m.Token(ctx)
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *TokenManager) refresh(ctx context.Context, cred model.Credential) (*model.TokenGrant, error) {
	var out refreshResponse
	_, err := shared.Do(ctx, m.client, shared.Request{
		URL: m.baseURL + "/refresh_access_token",
		Query: url.Values{
			"grant_type":   {"ig_refresh_token"},
			"access_token": {cred.AccessToken},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, model.NewPlatformError(model.KindProtocol, "", "refresh returned no access token")
	}
	return &model.TokenGrant{
		AccessToken: out.AccessToken,
		ExpiresIn:   time.Duration(out.ExpiresIn) * time.Second,
		TokenType:   out.TokenType,
	}, nil
}

// VerifyAuth reads the account profile with the current token.
func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	_, err = shared.Do(ctx, m.client, shared.Request{
		URL:   m.baseURL + "/me",
		Query: url.Values{"fields": {"id,username"}, "access_token": {token}},
	}, &me)
	return shared.VerifyResult(me.ID != "", err)
}
