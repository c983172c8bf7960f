package medium

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"

	medium "github.com/medium/medium-sdk-go"
)

// Medium accepts at most five tags per post.
const maxTags = 5

// Publisher creates Medium stories. The API offers no edit, delete or stats.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.Medium
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.Medium) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformMedium }

func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: medium stories need a title", model.ErrValidation))
	}
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	api := newAPI(p.cfg, p.client, token)

	userID := p.tokens.Credential().PlatformAccountID
	if userID == "" {
		u, err := api.GetUser("")
		if err != nil {
			return model.Failed(p.Platform(), apiError(err))
		}
		userID = u.ID
	}

	post, err := api.CreatePost(medium.CreatePostOptions{
		UserID:        userID,
		Title:         req.Title,
		Content:       markdown(req),
		ContentFormat: medium.ContentFormatMarkdown,
		Tags:          tags(req.Hashtags),
		PublishStatus: p.status(req),
	})
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	logger.GetLogger().WithField("platform", p.Platform()).WithField("post_id", post.ID).Info("Medium story created")
	return model.Succeeded(p.Platform(), post.ID, post.URL)
}

func (p *Publisher) status(req *model.PublishRequest) medium.PublishStatus {
	s := strings.ToLower(req.Visibility)
	if s == "" || (s != "public" && s != "draft" && s != "unlisted") {
		s = p.cfg.PublishStatus
	}
	return medium.PublishStatus(s)
}

func markdown(req *model.PublishRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(req.Title))
	if body := strings.TrimSpace(req.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	for _, m := range req.Media {
		if m.Type == model.MediaImage {
			fmt.Fprintf(&b, "![](%s)\n\n", m.URL)
		} else {
			fmt.Fprintf(&b, "%s\n\n", m.URL)
		}
	}
	if len(req.Mentions) > 0 {
		mentions := make([]string, 0, len(req.Mentions))
		for _, m := range req.Mentions {
			mentions = append(mentions, "@"+strings.TrimLeft(strings.TrimSpace(m), "@"))
		}
		b.WriteString(strings.Join(mentions, " "))
	}
	return strings.TrimSpace(b.String())
}

func tags(hashtags []string) []string {
	out := make([]string, 0, maxTags)
	for _, t := range hashtags {
		t = strings.TrimSpace(strings.TrimLeft(t, "#"))
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	return model.Failed(p.Platform(), fmt.Errorf("%w: medium stories cannot be edited through the API", model.ErrUnsupported))
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	return false, fmt.Errorf("%w: medium stories cannot be deleted through the API", model.ErrUnsupported)
}

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	return nil, fmt.Errorf("%w: medium exposes no story statistics", model.ErrUnsupported)
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}
