package facebook

import (
	"context"
	"net/http"
	"net/url"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
)

// TokenManager holds a page token. The stored RefreshToken is the user token
// it was derived from; refresh extends the user token and then fetches the
// page token again from /me/accounts.
type TokenManager struct {
	*shared.Lifecycle
	oauth   *OAuthClient
	client  *http.Client
	baseURL string
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.Facebook, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{oauth: NewOAuthClient(client, cfg), client: client, baseURL: cfg.GraphBaseURL}
	m.Lifecycle = shared.NewLifecycle(cred, store, m.refresh, opts...)
	return m
}

func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	return m.Token(ctx)
}

func (m *TokenManager) refresh(ctx context.Context, cred model.Credential) (*model.TokenGrant, error) {
	userToken := cred.RefreshToken
	if userToken == "" {
		return nil, model.NewPlatformError(model.KindAuth, "", "no user token stored for page exchange")
	}
	long, err := m.oauth.ExchangeLongLived(ctx, userToken)
	if err != nil {
		return nil, err
	}
	pages, err := m.oauth.Pages(ctx, long.AccessToken)
	if err != nil {
		return nil, err
	}
	page, err := SelectPage(pages, cred.PlatformAccountID)
	if err != nil {
		return nil, err
	}
	return &model.TokenGrant{
		AccessToken:  page.AccessToken,
		RefreshToken: long.AccessToken,
		// the page token lives as long as the user token behind it
		ExpiresIn:   long.TTL(),
		AccountID:   page.ID,
		AccountName: page.Name,
		TokenType:   "page",
	}, nil
}

func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	var me struct {
		ID string `json:"id"`
	}
	_, err = shared.Do(ctx, m.client, shared.Request{
		URL:   m.baseURL + "/me",
		Query: url.Values{"fields": {"id"}, "access_token": {token}},
	}, &me)
	return shared.VerifyResult(me.ID != "", err)
}
