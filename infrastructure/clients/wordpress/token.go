package wordpress

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
)

// TokenManager holds a WordPress application password or JWT. Neither
// expires, so Refresh only checks the site still accepts it.
type TokenManager struct {
	*shared.Lifecycle
	client *http.Client
}

func NewTokenManager(cred model.Credential, store repository.ICredential, client *http.Client, opts ...shared.LifecycleOption) *TokenManager {
	m := &TokenManager{client: client}
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
	var me struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
	}
	_, err := shared.Do(ctx, m.client, shared.Request{
		URL:     apiURL(cred, "/users/me"),
		Headers: authHeaders(cred, cred.AccessToken),
	}, &me)
	return me.ID != 0, err
}

// SiteURL normalises the site address stored as the account id.
func SiteURL(cred model.Credential) string {
	site := strings.TrimRight(strings.TrimSpace(cred.PlatformAccountID), "/")
	if site != "" && !strings.Contains(site, "://") {
		site = "https://" + site
	}
	return site
}

func apiURL(cred model.Credential, path string) string {
	return SiteURL(cred) + "/wp-json/wp/v2" + path
}

// authHeaders uses Basic auth for application passwords (username kept as
// the account name) and Bearer for JWT plugins.
func authHeaders(cred model.Credential, token string) map[string]string {
	if cred.TokenType == "basic" {
		raw := cred.PlatformAccountName + ":" + token
		return map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))}
	}
	return shared.Bearer(token)
}
