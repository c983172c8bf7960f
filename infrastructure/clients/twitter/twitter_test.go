package twitter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (t stubTransport) RoundTrip(r *http.Request) (*http.Response, error) { return t.fn(r) }

func httpJSON(status int, body string, headers map[string]string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(body))}
}

func newTestPublisher(t *testing.T, fn func(*http.Request) (*http.Response, error)) *Publisher {
	store := persistence.NewMemoryCredentialRepository()
	cred := model.Credential{
		UserID:              "u1",
		Platform:            model.PlatformTwitter,
		AccessToken:         "oauth-token",
		AccessSecret:        "oauth-secret",
		TokenType:           "oauth1",
		PlatformAccountName: "gopher",
	}
	require.NoError(t, store.Upsert(context.Background(), &cred))
	client := &http.Client{Transport: stubTransport{fn: fn}}
	cfg := configuration.Twitter{APIKey: "key", APIKeySecret: "secret"}
	return NewPublisher(NewTokenManager(cred, store, client, cfg), client, cfg)
}

func TestPublish_CreatesTweet(t *testing.T) {
	p := newTestPublisher(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Launch\n\nShipping today\n\n#go", body["text"])
		return httpJSON(201, `{"data":{"id":"1789","text":"Launch"}}`, nil), nil
	})

	res := p.Publish(context.Background(), &model.PublishRequest{Title: "Launch", Body: "Shipping today", Hashtags: []string{"go"}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "1789", res.ExternalPostID)
	assert.Equal(t, "https://x.com/gopher/status/1789", res.Permalink)
}

func TestPublish_ForbiddenIsAuth(t *testing.T) {
	p := newTestPublisher(t, func(r *http.Request) (*http.Response, error) {
		return httpJSON(403, `{"title":"Forbidden","detail":"You are not permitted to perform this action.","type":"about:blank","status":403}`, nil), nil
	})
	res := p.Publish(context.Background(), &model.PublishRequest{Body: "hi"})
	assert.False(t, res.Success)
	assert.Equal(t, model.KindAuth, res.ErrorKind)
}

func TestTweetText_KeepsMediaLinks(t *testing.T) {
	req := &model.PublishRequest{
		Body:  strings.Repeat("a", 400),
		Media: []model.MediaItem{{Type: model.MediaImage, URL: "https://cdn.test/a.jpg"}},
	}
	text := tweetText(req)
	assert.LessOrEqual(t, len([]rune(text)), maxTweetLength)
	assert.True(t, strings.HasSuffix(text, " https://cdn.test/a.jpg"))
}

func TestUpdateUnsupported(t *testing.T) {
	p := newTestPublisher(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	res := p.Update(context.Background(), "1789", &model.PublishRequest{Body: "x"})
	assert.Equal(t, model.KindUnsupported, res.ErrorKind)
}

func TestDeleteAndMetrics(t *testing.T) {
	p := newTestPublisher(t, func(r *http.Request) (*http.Response, error) {
		switch r.Method + " " + r.URL.Path {
		case "DELETE /2/tweets/1789":
			return httpJSON(200, `{"data":{"deleted":true}}`, nil), nil
		case "GET /2/tweets/1789":
			assert.Equal(t, "public_metrics", r.URL.Query().Get("tweet.fields"))
			return httpJSON(200, `{"data":{"id":"1789","text":"x","public_metrics":{"retweet_count":2,"reply_count":3,"like_count":10,"quote_count":1}}}`, nil), nil
		}
		t.Errorf("unexpected %s %s", r.Method, r.URL)
		return httpJSON(404, `{}`, nil), nil
	})
	ctx := context.Background()

	ok, err := p.Delete(ctx, "1789")
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := p.GetMetrics(ctx, "1789")
	require.NoError(t, err)
	assert.Equal(t, model.Metrics{Likes: 10, Comments: 3, Shares: 3}, *m)
}

func TestVerifyAuth(t *testing.T) {
	p := newTestPublisher(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/2/users/me", r.URL.Path)
		return httpJSON(200, `{"data":{"id":"42","name":"Gopher","username":"gopher"}}`, nil), nil
	})
	ok, err := p.VerifyAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewClient_RequiresSecret(t *testing.T) {
	_, err := newClient(model.Credential{AccessToken: "t"}, configuration.Twitter{}, http.DefaultClient)
	assert.Equal(t, model.KindAuth, model.KindOf(err))
}
