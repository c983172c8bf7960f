package wordpress

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
)

var statuses = map[string]bool{"publish": true, "draft": true, "pending": true, "private": true, "future": true}

// Publisher creates posts through the WordPress REST API in one call.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.WordPress
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.WordPress) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformWordPress }

type postBody struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

type postResponse struct {
	ID     int64  `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: wordpress posts need a title", model.ErrValidation))
	}
	body := postBody{Title: req.Title, Content: content(req), Status: p.status(req)}
	return p.save(ctx, "/posts", body)
}

func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	if externalID == "" || req == nil {
		return model.Failed(p.Platform(), fmt.Errorf("%w: post id and request are required", model.ErrValidation))
	}
	body := postBody{Title: req.Title, Content: content(req)}
	if req.Visibility != "" {
		body.Status = p.status(req)
	}
	return p.save(ctx, "/posts/"+url.PathEscape(externalID), body)
}

func (p *Publisher) save(ctx context.Context, path string, body postBody) *model.PublishResult {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	cred := p.tokens.Credential()
	var out postResponse
	_, err = shared.Do(ctx, p.client, shared.Request{
		Method:  http.MethodPost,
		URL:     apiURL(cred, path),
		JSON:    body,
		Headers: authHeaders(cred, token),
	}, &out)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	if out.ID == 0 {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindProtocol, "", "post saved without an id"))
	}
	id := strconv.FormatInt(out.ID, 10)
	logger.GetLogger().WithField("platform", p.Platform()).WithField("post_id", id).WithField("status", out.Status).Info("WordPress post saved")
	return model.Succeeded(p.Platform(), id, out.Link)
}

func (p *Publisher) status(req *model.PublishRequest) string {
	if s := strings.ToLower(req.Visibility); statuses[s] {
		return s
	}
	return p.cfg.DefaultStatus
}

// content renders the body as paragraphs followed by the media and the
// hashtag and mention line.
func content(req *model.PublishRequest) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(req.Body), "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(para))
		}
	}
	for _, m := range req.Media {
		switch m.Type {
		case model.MediaImage:
			fmt.Fprintf(&b, "<figure><img src=\"%s\" /></figure>\n", html.EscapeString(m.URL))
		case model.MediaVideo:
			fmt.Fprintf(&b, "[video src=\"%s\"]\n", html.EscapeString(m.URL))
		}
	}
	tail := shared.ComposeCaption(&model.PublishRequest{Hashtags: req.Hashtags, Mentions: req.Mentions})
	if tail != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(strings.ReplaceAll(tail, "\n\n", " ")))
	}
	return strings.TrimSpace(b.String())
}

// Delete moves the post to the trash.
func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	cred := p.tokens.Credential()
	var out postResponse
	_, err = shared.Do(ctx, p.client, shared.Request{
		Method:  http.MethodDelete,
		URL:     apiURL(cred, "/posts/"+url.PathEscape(externalID)),
		Headers: authHeaders(cred, token),
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Status == "trash", nil
}

// GetMetrics reports the comment count from the X-WP-Total header. WordPress
// core keeps no view or like counters.
func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	cred := p.tokens.Credential()
	headers, err := shared.Do(ctx, p.client, shared.Request{
		URL:     apiURL(cred, "/comments"),
		Query:   url.Values{"post": {externalID}, "per_page": {"1"}},
		Headers: authHeaders(cred, token),
	}, nil)
	if err != nil {
		return nil, err
	}
	total, _ := strconv.ParseInt(headers.Get("X-WP-Total"), 10, 64)
	return &model.Metrics{Comments: total}, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}
