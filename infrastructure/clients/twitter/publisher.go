package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/fields"
	"github.com/michimani/gotwi/tweet/managetweet"
	mtypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/tweet/tweetlookup"
	ltypes "github.com/michimani/gotwi/tweet/tweetlookup/types"
)

const maxTweetLength = 280

// Publisher posts tweets with the user's OAuth1 context.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.Twitter
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.Twitter) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformTwitter }

// Publish sends one tweet. Media is linked by URL since native uploads need
// the v1.1 media endpoint.
func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	c, err := p.gotwi(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	out, err := managetweet.Create(ctx, c, &mtypes.CreateInput{Text: gotwi.String(tweetText(req))})
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	id := gotwi.StringValue(out.Data.ID)
	if id == "" {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindProtocol, "", "tweet created without an id"))
	}
	logger.GetLogger().WithField("platform", p.Platform()).WithField("tweet_id", id).Info("Tweet created")
	return model.Succeeded(p.Platform(), id, p.permalink(id))
}

func tweetText(req *model.PublishRequest) string {
	links := make([]string, 0, len(req.Media))
	for _, m := range req.Media {
		links = append(links, m.URL)
	}
	suffix := strings.Join(links, " ")
	text := shared.ComposeText(req)
	if suffix == "" {
		return shared.Truncate(text, maxTweetLength)
	}
	room := maxTweetLength - len([]rune(suffix)) - 1
	if room <= 0 {
		return shared.Truncate(suffix, maxTweetLength)
	}
	if text == "" {
		return suffix
	}
	return shared.Truncate(text, room) + " " + suffix
}

func (p *Publisher) permalink(id string) string {
	user := p.tokens.Credential().PlatformAccountName
	if user == "" {
		user = "i/web"
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", user, id)
}

// Update is not offered by the v2 API.
func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	return model.Failed(p.Platform(), fmt.Errorf("%w: tweets cannot be edited", model.ErrUnsupported))
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	c, err := p.gotwi(ctx)
	if err != nil {
		return false, err
	}
	out, err := managetweet.Delete(ctx, c, &mtypes.DeleteInput{ID: externalID})
	if err != nil {
		return false, apiError(err)
	}
	return gotwi.BoolValue(out.Data.Deleted), nil
}

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	c, err := p.gotwi(ctx)
	if err != nil {
		return nil, err
	}
	out, err := tweetlookup.Get(ctx, c, &ltypes.GetInput{
		ID:          externalID,
		TweetFields: fields.TweetFieldList{fields.TweetFieldPublicMetrics},
	})
	if err != nil {
		return nil, apiError(err)
	}
	pm := out.Data.PublicMetrics
	if pm == nil {
		return &model.Metrics{}, nil
	}
	return &model.Metrics{
		Likes:    int64(gotwi.IntValue(pm.LikeCount)),
		Comments: int64(gotwi.IntValue(pm.ReplyCount)),
		Shares:   int64(gotwi.IntValue(pm.RetweetCount) + gotwi.IntValue(pm.QuoteCount)),
	}, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}

func (p *Publisher) gotwi(ctx context.Context) (*gotwi.Client, error) {
	if _, err := p.tokens.GetAccessToken(ctx); err != nil {
		return nil, err
	}
	return newClient(p.tokens.Credential(), p.cfg, p.client)
}
