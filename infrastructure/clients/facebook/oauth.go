package facebook

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
)

// Scopes requested when a user connects a page.
var Scopes = []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts", "public_profile"}

// defaultUserTokenTTL applies when the exchange omits expires_in.
const defaultUserTokenTTL = 60 * 24 * time.Hour

// UserToken is a facebook user access token.
type UserToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (t *UserToken) TTL() time.Duration {
	if t.ExpiresIn <= 0 {
		return defaultUserTokenTTL
	}
	return time.Duration(t.ExpiresIn) * time.Second
}

// Page is one page the user manages, with its page token.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// OAuthClient talks to the Graph API token endpoints.
type OAuthClient struct {
	client *http.Client
	cfg    configuration.Facebook
}

func NewOAuthClient(client *http.Client, cfg configuration.Facebook) *OAuthClient {
	return &OAuthClient{client: client, cfg: cfg}
}

// AuthURL is the consent dialog address for state and redirectURI.
func (o *OAuthClient) AuthURL(state, redirectURI string) string {
	version := "v19.0"
	if i := strings.LastIndex(o.cfg.GraphBaseURL, "/"); i >= 0 && strings.HasPrefix(o.cfg.GraphBaseURL[i+1:], "v") {
		version = o.cfg.GraphBaseURL[i+1:]
	}
	u := url.URL{Scheme: "https", Host: "www.facebook.com", Path: "/" + version + "/dialog/oauth"}
	q := u.Query()
	q.Set("client_id", o.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", strings.Join(Scopes, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

// ExchangeCode trades an authorization code for a short-lived user token.
func (o *OAuthClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*UserToken, error) {
	return o.token(ctx, url.Values{
		"client_id":     {o.cfg.ClientID},
		"client_secret": {o.cfg.ClientSecret},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	})
}

// ExchangeLongLived trades a user token for a long-lived one.
func (o *OAuthClient) ExchangeLongLived(ctx context.Context, userToken string) (*UserToken, error) {
	return o.token(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {o.cfg.ClientID},
		"client_secret":     {o.cfg.ClientSecret},
		"fb_exchange_token": {userToken},
	})
}

func (o *OAuthClient) token(ctx context.Context, q url.Values) (*UserToken, error) {
	var out UserToken
	if _, err := shared.Do(ctx, o.client, shared.Request{URL: o.cfg.GraphBaseURL + "/oauth/access_token", Query: q}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, model.NewPlatformError(model.KindProtocol, "", "token exchange returned no access token")
	}
	return &out, nil
}

// Pages lists the pages userToken manages with their page tokens.
func (o *OAuthClient) Pages(ctx context.Context, userToken string) ([]Page, error) {
	var out struct {
		Data []Page `json:"data"`
	}
	_, err := shared.Do(ctx, o.client, shared.Request{
		URL:   o.cfg.GraphBaseURL + "/me/accounts",
		Query: url.Values{"fields": {"id,name,access_token"}, "access_token": {userToken}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SelectPage picks pageID from pages, or the only page when pageID is empty.
func SelectPage(pages []Page, pageID string) (*Page, error) {
	if pageID == "" {
		if len(pages) == 1 {
			return &pages[0], nil
		}
		return nil, model.NewPlatformError(model.KindProtocol, "", "user manages %d pages and none is selected", len(pages))
	}
	for i := range pages {
		if pages[i].ID == pageID {
			return &pages[i], nil
		}
	}
	return nil, model.NewPlatformError(model.KindAuth, "", "page %s is no longer granted to this user", pageID)
}
