package twitter

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/user/userlookup"
	"github.com/michimani/gotwi/user/userlookup/types"
)

// TokenManager holds an OAuth1 user context. The token pair never expires.
type TokenManager struct {
	*shared.Lifecycle
	client *http.Client
	cfg    configuration.Twitter
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.Twitter, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{client: client, cfg: cfg}
	m.Lifecycle = shared.NewLifecycle(cred, store, shared.StaticRefresh(m.probe), opts...)
	return m
}

func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	return m.Token(ctx)
}

func (m *TokenManager) VerifyAuth(ctx context.Context) (bool, error) {
	return shared.VerifyResult(m.probe(ctx, m.Credential()))
}

func (m *TokenManager) probe(ctx context.Context, cred model.Credential) (bool, error) {
	c, err := newClient(cred, m.cfg, m.client)
	if err != nil {
		return false, err
	}
	out, err := userlookup.GetMe(ctx, c, &types.GetMeInput{})
	if err != nil {
		return false, apiError(err)
	}
	return out.Data.ID != nil && *out.Data.ID != "", nil
}

func newClient(cred model.Credential, cfg configuration.Twitter, httpClient *http.Client) (*gotwi.Client, error) {
	if cred.AccessToken == "" || cred.AccessSecret == "" {
		return nil, model.NewPlatformError(model.KindAuth, "", "twitter needs an oauth token and secret")
	}
	c, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           httpClient,
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cred.AccessToken,
		OAuthTokenSecret:     cred.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APIKeySecret,
	})
	if err != nil {
		return nil, model.NewPlatformError(model.KindAuth, "", "twitter client: %v", err)
	}
	return c, nil
}

// apiError classifies a gotwi failure by the HTTP status it carries.
func apiError(err error) error {
	var ge *gotwi.GotwiError
	if !errors.As(err, &ge) || !ge.OnAPI {
		return shared.TransportError(err)
	}
	msg := ge.Detail
	if msg == "" {
		msg = ge.Title
	}
	return &model.PlatformError{
		Kind:    shared.ClassifyStatus(ge.StatusCode),
		Code:    strconv.Itoa(ge.StatusCode),
		Message: msg,
		Err:     err,
	}
}
