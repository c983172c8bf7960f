package youtube

import (
	"context"
	"errors"
	"net/http"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"

	"golang.org/x/oauth2"
	"google.golang.org/api/youtube/v3"
)

// Scopes requested when a user connects a channel.
var Scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeScope, youtube.YoutubeForceSslScope}

// TokenManager refreshes Google OAuth tokens. Google may rotate the refresh
// token, so the factory builds it with a locker.
type TokenManager struct {
	*shared.Lifecycle
	oauth  *oauth2.Config
	client *http.Client
	cfg    configuration.YouTube
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.YouTube, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       Scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		client: client,
		cfg:    cfg,
	}
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
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	// an already expired token forces the source to hit the token endpoint
	src := m.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, oauthError(err)
	}
	grant := &model.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    "bearer",
	}
	if !tok.Expiry.IsZero() {
		grant.ExpiresIn = time.Until(tok.Expiry)
	}
	return grant, nil
}

func oauthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		kind := model.KindTransient
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
			kind = shared.ClassifyStatus(status)
		}
		// a revoked or expired grant can only be fixed by reconnecting
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "unauthorized_client" {
			kind = model.KindAuth
		}
		return &model.PlatformError{Kind: kind, Code: re.ErrorCode, Message: re.ErrorDescription, Err: err}
	}
	return shared.TransportError(err)
}

// VerifyAuth lists the channel the token belongs to.
func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	svc, err := newService(ctx, m.client, token, m.cfg.APIBaseURL)
	if err != nil {
		return false, err
	}
	resp, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return shared.VerifyResult(false, apiError(err))
	}
	return len(resp.Items) > 0, nil
}
