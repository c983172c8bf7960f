package reddit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"

	"github.com/vartanbeno/go-reddit/v2/reddit"
	"golang.org/x/oauth2"
)

// TokenManager holds a script-app login. go-reddit runs the password grant
// itself, so the stored credential never expires.
type TokenManager struct {
	*shared.Lifecycle
	client *http.Client
	cfg    configuration.Reddit

	mu      sync.Mutex
	api     *reddit.Client
	version int
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, cfg configuration.Reddit, opts ...shared.LifecycleOption) *TokenManager {
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

// API returns a go-reddit client for the current credential. The client keeps
// its own bearer token, so it is reused until the credential changes.
func (m *TokenManager) API(ctx context.Context) (*reddit.Client, error) {
	if _, err := m.GetAccessToken(ctx); err != nil {
		return nil, err
	}
	cred := m.Credential()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.api != nil && m.version == cred.Version {
		return m.api, nil
	}
	c, err := newClient(cred, m.cfg, m.client)
	if err != nil {
		return nil, err
	}
	m.api, m.version = c, cred.Version
	return c, nil
}

func (m *TokenManager) probe(ctx context.Context, cred model.Credential) (bool, error) {
	c, err := newClient(cred, m.cfg, m.client)
	if err != nil {
		return false, err
	}
	me, _, err := c.Account.Info(ctx)
	if err != nil {
		return false, apiError(err)
	}
	return me != nil && me.ID != "", nil
}

func newClient(cred model.Credential, cfg configuration.Reddit, httpClient *http.Client) (*reddit.Client, error) {
	if cred.PlatformAccountName == "" || cred.AccessSecret == "" {
		return nil, model.NewPlatformError(model.KindAuth, "", "reddit needs a username and password")
	}
	opts := []reddit.Opt{reddit.WithUserAgent(cfg.UserAgent)}
	if httpClient != nil {
		// go-reddit wraps the transport of the client it is given
		hc := *httpClient
		opts = append(opts, reddit.WithHTTPClient(&hc))
	}
	c, err := reddit.NewClient(reddit.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cred.PlatformAccountName,
		Password: cred.AccessSecret,
	}, opts...)
	if err != nil {
		return nil, model.NewPlatformError(model.KindAuth, "", "reddit client: %v", err)
	}
	return c, nil
}

// apiError classifies go-reddit failures.
func apiError(err error) error {
	var rl *reddit.RateLimitError
	if errors.As(err, &rl) {
		return &model.PlatformError{Kind: model.KindRateLimited, Code: "429", Message: rl.Message, Err: err}
	}
	var je *reddit.JSONErrorResponse
	if errors.As(err, &je) {
		code := ""
		msg := err.Error()
		if len(je.JSON.Errors) > 0 {
			code = je.JSON.Errors[0].Label
			msg = je.JSON.Errors[0].Reason
		}
		return &model.PlatformError{Kind: model.KindProtocol, Code: code, Message: msg, Err: err}
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		// the password grant was refused
		return &model.PlatformError{Kind: model.KindAuth, Code: re.ErrorCode, Message: re.ErrorDescription, Err: err}
	}
	var er *reddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		status := er.Response.StatusCode
		return &model.PlatformError{Kind: shared.ClassifyStatus(status), Code: strconv.Itoa(status), Message: er.Message, Err: err}
	}
	return shared.TransportError(err)
}
