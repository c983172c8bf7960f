package reddit

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

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

const maxTitleLength = 300

// Publisher submits posts to the subreddit stored as the account id.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.Reddit
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.Reddit) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformReddit }

// Publish submits a link post for a lone media item without text, and a
// self post otherwise. The external id is the fullname (t3_...).
func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: reddit posts need a title", model.ErrValidation))
	}
	cred := p.tokens.Credential()
	subreddit := strings.TrimPrefix(strings.TrimPrefix(cred.PlatformAccountID, "/"), "r/")
	if subreddit == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: no subreddit connected", model.ErrValidation))
	}
	c, err := p.reddit(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}

	title := shared.Truncate(strings.TrimSpace(req.Title), maxTitleLength)
	var submitted *reddit.Submitted
	if len(req.Media) == 1 && strings.TrimSpace(req.Body) == "" {
		submitted, _, err = c.Post.SubmitLink(ctx, reddit.SubmitLinkRequest{
			Subreddit: subreddit,
			Title:     title,
			URL:       req.Media[0].URL,
		})
	} else {
		submitted, _, err = c.Post.SubmitText(ctx, reddit.SubmitTextRequest{
			Subreddit: subreddit,
			Title:     title,
			Text:      selfText(req),
		})
	}
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	if submitted == nil || submitted.FullID == "" {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindProtocol, "", "submission returned no id"))
	}
	logger.GetLogger().WithField("platform", p.Platform()).WithField("subreddit", subreddit).WithField("post_id", submitted.FullID).Info("Reddit post submitted")
	return model.Succeeded(p.Platform(), submitted.FullID, submitted.URL)
}

func selfText(req *model.PublishRequest) string {
	text := shared.ComposeCaption(req)
	for _, m := range req.Media {
		text += "\n\n" + m.URL
	}
	return strings.TrimSpace(text)
}

// Update edits the body of a self post.
func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	if externalID == "" || req == nil {
		return model.Failed(p.Platform(), fmt.Errorf("%w: post id and request are required", model.ErrValidation))
	}
	c, err := p.reddit(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	post, _, err := c.Post.Edit(ctx, fullID(externalID), selfText(req))
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	permalink := ""
	if post != nil {
		permalink = post.URL
	}
	return model.Succeeded(p.Platform(), fullID(externalID), permalink)
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	c, err := p.reddit(ctx)
	if err != nil {
		return false, err
	}
	if _, err := c.Post.Delete(ctx, fullID(externalID)); err != nil {
		return false, apiError(err)
	}
	return true, nil
}

// GetMetrics reports the score as likes. Reddit has no public view counter.
func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	c, err := p.reddit(ctx)
	if err != nil {
		return nil, err
	}
	pc, _, err := c.Post.Get(ctx, strings.TrimPrefix(externalID, "t3_"))
	if err != nil {
		return nil, apiError(err)
	}
	if pc == nil || pc.Post == nil {
		return nil, model.NewPlatformError(model.KindProtocol, "", "post not found: %s", externalID)
	}
	return &model.Metrics{
		Likes:    int64(pc.Post.Score),
		Comments: int64(pc.Post.NumberOfComments),
	}, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}

type apiSource interface {
	API(ctx context.Context) (*reddit.Client, error)
}

func (p *Publisher) reddit(ctx context.Context) (*reddit.Client, error) {
	if src, ok := p.tokens.(apiSource); ok {
		return src.API(ctx)
	}
	if _, err := p.tokens.GetAccessToken(ctx); err != nil {
		return nil, err
	}
	return newClient(p.tokens.Credential(), p.cfg, p.client)
}

func fullID(id string) string {
	if strings.HasPrefix(id, "t3_") {
		return id
	}
	return "t3_" + id
}
