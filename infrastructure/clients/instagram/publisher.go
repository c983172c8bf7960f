package instagram

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

const (
	minCarouselItems = 2
	maxCarouselItems = 10
)

// Publisher posts to an Instagram professional account through the media
// container protocol: create container, wait until FINISHED, publish.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.Instagram
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.Instagram) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformInstagram }

type containerForm struct {
	ImageURL       string `url:"image_url,omitempty"`
	VideoURL       string `url:"video_url,omitempty"`
	MediaType      string `url:"media_type,omitempty"`
	Caption        string `url:"caption,omitempty"`
	IsCarouselItem bool   `url:"is_carousel_item,omitempty"`
	Children       string `url:"children,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	images, videos := req.CountMedia()
	switch {
	case len(req.Media) == 0:
		return model.Failed(p.Platform(), fmt.Errorf("%w: instagram posts need an image or a video", model.ErrValidation))
	case videos > 0 && len(req.Media) > 1:
		return model.Failed(p.Platform(), fmt.Errorf("%w: instagram takes a single video per post", model.ErrValidation))
	case images > 1:
		return p.PublishCarousel(ctx, req)
	}

	media := req.Media[0]
	form := containerForm{Caption: shared.ComposeCaption(req)}
	attempts := p.cfg.ImagePollAttempts
	if media.Type == model.MediaVideo {
		form.MediaType = "REELS"
		form.VideoURL = media.URL
		attempts = p.cfg.VideoPollAttempts
	} else {
		form.ImageURL = media.URL
	}

	res, err := p.run(ctx, func(ctx context.Context, token string) (string, error) {
		id, err := p.createContainer(ctx, token, form)
		if err != nil {
			return "", err
		}
		if err := p.waitReady(ctx, token, id, attempts); err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	return res
}

// PublishCarousel creates one child container per image, one CAROUSEL parent
// referencing them and publishes the parent. Item counts outside 2..10 are
// rejected before any request is sent.
func (p *Publisher) PublishCarousel(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := validateCarousel(req); err != nil {
		return model.Failed(p.Platform(), err)
	}
	res, err := p.run(ctx, func(ctx context.Context, token string) (string, error) {
		children := make([]string, 0, len(req.Media))
		for _, m := range req.Media {
			id, err := p.createContainer(ctx, token, containerForm{ImageURL: m.URL, IsCarouselItem: true})
			if err != nil {
				return "", err
			}
			if err := p.waitReady(ctx, token, id, p.cfg.ImagePollAttempts); err != nil {
				return "", err
			}
			children = append(children, id)
		}
		parent, err := p.createContainer(ctx, token, containerForm{
			MediaType: "CAROUSEL",
			Children:  strings.Join(children, ","),
			Caption:   shared.ComposeCaption(req),
		})
		if err != nil {
			return "", err
		}
		if err := p.waitReady(ctx, token, parent, p.cfg.ImagePollAttempts); err != nil {
			return "", err
		}
		return parent, nil
	})
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	return res
}

func validateCarousel(req *model.PublishRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", model.ErrValidation)
	}
	n := len(req.Media)
	if n < minCarouselItems || n > maxCarouselItems {
		return fmt.Errorf("%w: carousel needs %d to %d images, got %d", model.ErrValidation, minCarouselItems, maxCarouselItems, n)
	}
	for i, m := range req.Media {
		if m.Type != model.MediaImage {
			return fmt.Errorf("%w: carousel item %d is not an image", model.ErrValidation, i)
		}
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("%w: carousel item %d has no url", model.ErrValidation, i)
		}
	}
	return nil
}

// run resolves the token, builds a ready container with prepare and publishes it.
func (p *Publisher) run(ctx context.Context, prepare func(ctx context.Context, token string) (string, error)) (*model.PublishResult, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	creationID, err := prepare(ctx, token)
	if err != nil {
		return nil, err
	}

	var published idResponse
	_, err = shared.Do(ctx, p.client, shared.Request{
		Method: http.MethodPost,
		URL:    p.accountURL("media_publish"),
		Query:  url.Values{"access_token": {token}},
		Form:   url.Values{"creation_id": {creationID}},
	}, &published)
	if err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, model.NewPlatformError(model.KindProtocol, "", "media_publish returned no id")
	}
	return model.Succeeded(p.Platform(), published.ID, p.permalink(ctx, token, published.ID)), nil
}

func (p *Publisher) createContainer(ctx context.Context, token string, form containerForm) (string, error) {
	var out idResponse
	_, err := shared.Do(ctx, p.client, shared.Request{
		Method: http.MethodPost,
		URL:    p.accountURL("media"),
		Query:  url.Values{"access_token": {token}},
		Form:   form,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "container response has no id")
	}
	return out.ID, nil
}

func (p *Publisher) waitReady(ctx context.Context, token, containerID string, attempts int) error {
	log := logger.GetLogger().WithField("platform", p.Platform()).WithField("container_id", containerID)
	return shared.PollUntil(ctx, p.cfg.PollInterval, attempts, func(ctx context.Context) (shared.PollState, error) {
		var status struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		_, err := shared.Do(ctx, p.client, shared.Request{
			URL:   p.cfg.GraphBaseURL + "/" + url.PathEscape(containerID),
			Query: url.Values{"fields": {"status_code,status"}, "access_token": {token}},
		}, &status)
		if err != nil {
			return shared.PollPending, err
		}
		switch strings.ToUpper(strings.TrimSpace(status.StatusCode)) {
		case "FINISHED", "PUBLISHED":
			return shared.PollReady, nil
		case "ERROR", "EXPIRED":
			log.WithField("status", status.Status).Warn("Container processing failed")
			return shared.PollFailed, nil
		}
		return shared.PollPending, nil
	})
}

// permalink resolves the public link of a published media. Failures fall back to the id.
func (p *Publisher) permalink(ctx context.Context, token, mediaID string) string {
	var out struct {
		Permalink string `json:"permalink"`
	}
	_, err := shared.Do(ctx, p.client, shared.Request{
		URL:   p.cfg.GraphBaseURL + "/" + url.PathEscape(mediaID),
		Query: url.Values{"fields": {"permalink"}, "access_token": {token}},
	}, &out)
	if err != nil || out.Permalink == "" {
		logger.GetLogger().WithField("media_id", mediaID).WithField("error", err).Debug("Permalink lookup failed")
		return mediaID
	}
	return out.Permalink
}

// Update is not offered by the Instagram API for published media.
func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	return model.Failed(p.Platform(), model.NewPlatformError(model.KindUnsupported, "", "instagram media cannot be edited after publishing"))
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

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var counts struct {
		LikeCount     int64 `json:"like_count"`
		CommentsCount int64 `json:"comments_count"`
	}
	_, err = shared.Do(ctx, p.client, shared.Request{
		URL:   p.cfg.GraphBaseURL + "/" + url.PathEscape(externalID),
		Query: url.Values{"fields": {"like_count,comments_count"}, "access_token": {token}},
	}, &counts)
	if err != nil {
		return nil, err
	}
	metrics := &model.Metrics{Likes: counts.LikeCount, Comments: counts.CommentsCount}

	var insights struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	_, err = shared.Do(ctx, p.client, shared.Request{
		URL:   p.cfg.GraphBaseURL + "/" + url.PathEscape(externalID) + "/insights",
		Query: url.Values{"metric": {"views,shares"}, "access_token": {token}},
	}, &insights)
	if err != nil {
		// insights need extra scopes; counts alone are still useful
		logger.GetLogger().WithField("media_id", externalID).WithField("error", err).Debug("Insights unavailable")
		return metrics, nil
	}
	for _, d := range insights.Data {
		if len(d.Values) == 0 {
			continue
		}
		switch d.Name {
		case "views":
			metrics.Views = d.Values[0].Value
		case "shares":
			metrics.Shares = d.Values[0].Value
		}
	}
	return metrics, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}

func (p *Publisher) accountURL(edge string) string {
	accountID := p.tokens.Credential().PlatformAccountID
	if accountID == "" {
		accountID = "me"
	}
	return p.cfg.GraphBaseURL + "/" + url.PathEscape(accountID) + "/" + edge
}
