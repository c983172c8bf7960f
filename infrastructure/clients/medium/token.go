package medium

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"

	medium "github.com/medium/medium-sdk-go"
)

// Medium API error codes for a token that can no longer be used.
var tokenErrorCodes = map[int]bool{6000: true, 6001: true, 6003: true}

// TokenManager refreshes Medium integration tokens. Medium rotates the
// refresh token on every exchange, so the factory builds it with a locker.
type TokenManager struct {
	*shared.Lifecycle
	client *http.Client
	cfg    configuration.Medium
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.Medium, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{client: client, cfg: cfg}
	m.Lifecycle = shared.NewLifecycle(cred, store, m.refresh, opts...)
	return m
}

func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	return m.Token(ctx)
}

func (m *TokenManager) refresh(ctx context.Context, cred model.Credential) (*model.TokenGrant, error) {
	if cred.RefreshToken == "" {
		return nil, model.NewPlatformError(model.KindAuth, "", "no refresh token stored")
	}
	api := newAPI(m.cfg, m.client, "")
	tok, err := api.ExchangeRefreshToken(cred.RefreshToken)
	if err != nil {
		return nil, apiError(err)
	}
	if tok.AccessToken == "" {
		return nil, model.NewPlatformError(model.KindProtocol, "", "refresh returned no access token")
	}
	grant := &model.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    "bearer",
	}
	if tok.ExpiresAt > 0 {
		grant.ExpiresIn = time.Until(time.UnixMilli(tok.ExpiresAt))
	}
	return grant, nil
}

// VerifyAuth reads the profile of the token owner.
func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	u, err := newAPI(m.cfg, m.client, token).GetUser("")
	if err != nil {
		return shared.VerifyResult(false, apiError(err))
	}
	return u != nil && u.ID != "", nil
}

// newAPI builds an SDK client on the shared transport. An empty token gives
// the application client used for token exchange.
func newAPI(cfg configuration.Medium, client *http.Client, token string) *medium.Medium {
	var api *medium.Medium
	if token == "" {
		api = medium.NewClient(cfg.ClientID, cfg.ClientSecret)
	} else {
		api = medium.NewClientWithAccessToken(token)
	}
	if cfg.APIBaseURL != "" {
		api.Host = cfg.APIBaseURL
	}
	if client != nil {
		if client.Transport != nil {
			api.Transport = client.Transport
		}
		if client.Timeout > 0 {
			api.Timeout = client.Timeout
		}
	}
	return api
}

// apiError classifies an SDK failure. The SDK reports either a Medium error
// code or the HTTP status in Code.
func apiError(err error) error {
	var me medium.Error
	if !errors.As(err, &me) {
		return shared.TransportError(err)
	}
	kind := model.KindProtocol
	switch {
	case tokenErrorCodes[me.Code]:
		kind = model.KindAuth
	case me.Code >= 400 && me.Code < 600:
		kind = shared.ClassifyStatus(me.Code)
	case me.Code <= 0:
		kind = model.KindTransient
	}
	return &model.PlatformError{Kind: kind, Code: strconv.Itoa(me.Code), Message: me.Message, Err: err}
}
