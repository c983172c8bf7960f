package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/clients/facebook"
	"content-publisher/infrastructure/configuration"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type graphTransport struct{}

func (graphTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	body := `{}`
	q := r.URL.Query()
	switch {
	case r.URL.Path == "/v19.0/oauth/access_token" && q.Get("code") == "good":
		body = `{"access_token":"short","token_type":"bearer","expires_in":3600}`
	case r.URL.Path == "/v19.0/oauth/access_token" && q.Get("fb_exchange_token") == "short":
		body = `{"access_token":"long","token_type":"bearer","expires_in":5184000}`
	case r.URL.Path == "/v19.0/me/accounts" && q.Get("access_token") == "long":
		body = `{"data":[{"id":"pg1","name":"Shop","access_token":"page-tok"},{"id":"pg2","name":"Blog","access_token":"page-2"}]}`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newFacebookRouter(cu *MockCredentialUsecase) (*gin.Engine, *facebookOAuthHandler) {
	gin.SetMode(gin.TestMode)
	oauth := facebook.NewOAuthClient(&http.Client{Transport: graphTransport{}}, configuration.Facebook{
		GraphBaseURL: "https://graph.facebook.test/v19.0",
		ClientID:     "app",
		ClientSecret: "secret",
	})
	h := NewFacebookOAuthHandler(oauth, "https://app.test/auth/facebook/callback", cu).(*facebookOAuthHandler)
	r := gin.New()
	r.GET("/auth/facebook", withUser("u1"), h.GetAuthURL)
	r.GET("/auth/facebook/callback", h.Callback)
	return r, h
}

func TestFacebookOAuth_StoresSelectedPage(t *testing.T) {
	cu := new(MockCredentialUsecase)
	cu.On("Connect", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool {
		return c.UserID == "u1" && c.Platform == model.PlatformFacebook &&
			c.AccessToken == "page-2" && c.RefreshToken == "long" &&
			c.PlatformAccountID == "pg2" && c.ExpiresAt != nil
	})).Return(&model.Credential{PlatformAccountID: "pg2", PlatformAccountName: "Blog"}, nil)
	r, h := newFacebookRouter(cu)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/facebook?page_id=pg2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dialog/oauth")

	var state string
	h.stateMu.Lock()
	for s := range h.states {
		state = s
	}
	h.stateMu.Unlock()
	require.NotEmpty(t, state)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/facebook/callback?code=good&state="+state, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"page_id":"pg2"`)
	cu.AssertExpectations(t)

	// a state is single use
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/facebook/callback?code=good&state="+state, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFacebookOAuth_ExpiredState(t *testing.T) {
	r, h := newFacebookRouter(new(MockCredentialUsecase))
	h.states["old"] = pendingLogin{userID: "u1", expires: time.Now().Add(-time.Minute)}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/facebook/callback?code=good&state=old", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFacebookOAuth_AmbiguousPage(t *testing.T) {
	r, h := newFacebookRouter(new(MockCredentialUsecase))
	h.states["s"] = pendingLogin{userID: "u1", expires: time.Now().Add(time.Minute)}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/facebook/callback?code=good&state=s", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
