package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
)

// Publisher posts to a facebook page with its page token.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.Facebook
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.Facebook) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformFacebook }

type postResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	images, videos := req.CountMedia()
	if videos > 0 && len(req.Media) > 1 {
		return model.Failed(p.Platform(), fmt.Errorf("%w: a page post takes one video without other media", model.ErrValidation))
	}
	pageID := p.tokens.Credential().PlatformAccountID
	if pageID == "" {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindAuth, "", "no facebook page selected"))
	}
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}

	message := shared.ComposeText(req)
	var id string
	switch {
	case videos == 1:
		id, err = p.postVideo(ctx, token, pageID, req, message)
	case images == 1:
		id, err = p.postPhoto(ctx, token, pageID, req.Media[0].URL, message)
	case images > 1:
		id, err = p.postAlbum(ctx, token, pageID, req.Media, message)
	default:
		id, err = p.postFeed(ctx, token, pageID, url.Values{"message": {message}})
	}
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	return model.Succeeded(p.Platform(), id, p.permalink(ctx, token, id))
}

func (p *Publisher) postFeed(ctx context.Context, token, pageID string, form url.Values) (string, error) {
	var out postResponse
	if err := p.post(ctx, token, pageID+"/feed", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "feed response has no id")
	}
	return out.ID, nil
}

func (p *Publisher) postPhoto(ctx context.Context, token, pageID, imageURL, caption string) (string, error) {
	var out postResponse
	form := url.Values{"url": {imageURL}}
	if caption != "" {
		form.Set("caption", caption)
	}
	if err := p.post(ctx, token, pageID+"/photos", form, &out); err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	if out.ID == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "photo response has no id")
	}
	return out.ID, nil
}

// postAlbum uploads every image unpublished and attaches them to one feed post.
func (p *Publisher) postAlbum(ctx context.Context, token, pageID string, media []model.MediaItem, message string) (string, error) {
	form := url.Values{}
	if message != "" {
		form.Set("message", message)
	}
	for i, m := range media {
		var photo postResponse
		if err := p.post(ctx, token, pageID+"/photos", url.Values{"url": {m.URL}, "published": {"false"}}, &photo); err != nil {
			return "", err
		}
		if photo.ID == "" {
			return "", model.NewPlatformError(model.KindProtocol, "", "unpublished photo %d has no id", i)
		}
		form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, photo.ID))
	}
	return p.postFeed(ctx, token, pageID, form)
}

func (p *Publisher) postVideo(ctx context.Context, token, pageID string, req *model.PublishRequest, description string) (string, error) {
	form := url.Values{"file_url": {req.Media[0].URL}}
	if req.Title != "" {
		form.Set("title", req.Title)
	}
	if caption := shared.ComposeCaption(req); caption != "" {
		form.Set("description", caption)
	} else if description != "" {
		form.Set("description", description)
	}
	var out postResponse
	if err := p.post(ctx, token, pageID+"/videos", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "video response has no id")
	}
	return out.ID, nil
}

func (p *Publisher) post(ctx context.Context, token, path string, form url.Values, out interface{}) error {
	_, err := shared.Do(ctx, p.client, shared.Request{
		Method: http.MethodPost,
		URL:    p.cfg.GraphBaseURL + "/" + path,
		Query:  url.Values{"access_token": {token}},
		Form:   form,
	}, out)
	return err
}

func (p *Publisher) permalink(ctx context.Context, token, id string) string {
	var out struct {
		PermalinkURL string `json:"permalink_url"`
	}
	_, err := shared.Do(ctx, p.client, shared.Request{
		URL:   p.cfg.GraphBaseURL + "/" + url.PathEscape(id),
		Query: url.Values{"fields": {"permalink_url"}, "access_token": {token}},
	}, &out)
	if err != nil || out.PermalinkURL == "" {
		logger.GetLogger().WithField("post_id", id).WithField("error", err).Debug("Permalink lookup failed")
		return id
	}
	if strings.HasPrefix(out.PermalinkURL, "/") {
		return "https://www.facebook.com" + out.PermalinkURL
	}
	return out.PermalinkURL
}

// Update edits the message of a page post. Media cannot be replaced.
func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	if externalID == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: external id is required", model.ErrValidation))
	}
	message := shared.ComposeText(req)
	if message == "" {
		return model.Failed(p.Platform(), fmt.Errorf("%w: nothing to update", model.ErrValidation))
	}
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := p.post(ctx, token, url.PathEscape(externalID), url.Values{"message": {message}}, &out); err != nil {
		return model.Failed(p.Platform(), err)
	}
	if !out.Success {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindProtocol, "", "post %s was not updated", externalID))
	}
	return model.Succeeded(p.Platform(), externalID, p.permalink(ctx, token, externalID))
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}
	var out struct {
		Success bool `json:"success"`
	}
	_, err = shared.Do(ctx, p.client, shared.Request{
		Method: http.MethodDelete,
		URL:    p.cfg.GraphBaseURL + "/" + url.PathEscape(externalID),
		Query:  url.Values{"access_token": {token}},
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Success, nil
}

type summaryCount struct {
	Summary struct {
		TotalCount int64 `json:"total_count"`
	} `json:"summary"`
}

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Shares struct {
			Count int64 `json:"count"`
		} `json:"shares"`
		Likes    summaryCount `json:"likes"`
		Comments summaryCount `json:"comments"`
	}
	_, err = shared.Do(ctx, p.client, shared.Request{
		URL: p.cfg.GraphBaseURL + "/" + url.PathEscape(externalID),
		Query: url.Values{
			"fields":       {"shares,likes.summary(true).limit(0),comments.summary(true).limit(0)"},
			"access_token": {token},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &model.Metrics{
		Likes:    out.Likes.Summary.TotalCount,
		Comments: out.Comments.Summary.TotalCount,
		Shares:   out.Shares.Count,
	}, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}
