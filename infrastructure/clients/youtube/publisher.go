package youtube

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

	"google.golang.org/api/youtube/v3"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 5000
	watchURL             = "https://www.youtube.com/watch?v="
)

// Publisher uploads videos to the connected channel.
type Publisher struct {
	tokens repository.ITokenManager
	client *http.Client
	cfg    configuration.YouTube
}

func NewPublisher(tokens repository.ITokenManager, client *http.Client, cfg configuration.YouTube) *Publisher {
	return &Publisher{tokens: tokens, client: client, cfg: cfg}
}

func (p *Publisher) Platform() string { return model.PlatformYouTube }

type videoMetadata struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

func (p *Publisher) metadata(req *model.PublishRequest) videoMetadata {
	var m videoMetadata
	m.Snippet.Title = shared.Truncate(videoTitle(req), maxTitleLength)
	m.Snippet.Description = shared.Truncate(shared.ComposeCaption(req), maxDescriptionLength)
	m.Snippet.Tags = cleanTags(req.Hashtags)
	m.Snippet.CategoryID = p.cfg.CategoryID
	m.Status.PrivacyStatus = p.privacy(req)
	return m
}

func (p *Publisher) privacy(req *model.PublishRequest) string {
	switch strings.ToLower(req.Visibility) {
	case "public", "private", "unlisted":
		return strings.ToLower(req.Visibility)
	}
	return p.cfg.PrivacyStatus
}

func videoTitle(req *model.PublishRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	if b := strings.TrimSpace(req.Body); b != "" {
		return strings.SplitN(b, "\n", 2)[0]
	}
	return "Untitled"
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(t, "#"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Publish copies the video from its URL into a resumable upload session and
// waits for YouTube to finish processing it.
func (p *Publisher) Publish(ctx context.Context, req *model.PublishRequest) *model.PublishResult {
	if err := req.Validate(); err != nil {
		return model.Failed(p.Platform(), err)
	}
	if images, videos := req.CountMedia(); videos != 1 || images != 0 {
		return model.Failed(p.Platform(), fmt.Errorf("%w: youtube needs exactly one video", model.ErrValidation))
	}
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}

	up := p.uploader(token)
	src, err := up.probe(ctx, req.Media[0].URL)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	session, err := up.open(ctx, p.cfg.UploadBaseURL, src, p.metadata(req))
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	videoID, attempts, err := up.send(ctx, session, src)
	log := logger.GetLogger().WithField("platform", p.Platform()).WithField("attempts", attempts)
	if err != nil {
		log.WithField("error", err).Warn("Video upload failed")
		return model.Failed(p.Platform(), err)
	}
	log.WithField("video_id", videoID).Info("Video uploaded")

	if err := p.waitProcessed(ctx, token, videoID); err != nil {
		// The video exists now; a retry would upload a duplicate.
		res := model.Failed(p.Platform(), &model.PlatformError{Kind: model.KindProtocol, Code: "processing_incomplete", Message: err.Error(), Err: err})
		res.ExternalPostID = videoID
		res.Permalink = watchURL + videoID
		return res
	}
	return model.Succeeded(p.Platform(), videoID, watchURL+videoID)
}

func (p *Publisher) uploader(token string) *uploader {
	return &uploader{
		client:  p.client,
		token:   token,
		retries: p.cfg.UploadRetries,
		backoff: p.cfg.UploadBackoff,
		resumes: p.cfg.ResumeLimit,
		sleep:   sleepCtx,
	}
}

func (p *Publisher) waitProcessed(ctx context.Context, token, videoID string) error {
	svc, err := newService(ctx, p.client, token, p.cfg.APIBaseURL)
	if err != nil {
		return err
	}
	return shared.PollUntil(ctx, p.cfg.PollInterval, p.cfg.PollAttempts, func(ctx context.Context) (shared.PollState, error) {
		resp, err := svc.Videos.List([]string{"processingDetails", "status"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return shared.PollPending, apiError(err)
		}
		if len(resp.Items) == 0 {
			return shared.PollPending, nil
		}
		return processingState(resp.Items[0]), nil
	})
}

func processingState(v *youtube.Video) shared.PollState {
	if v.Status != nil {
		switch v.Status.UploadStatus {
		case "failed", "rejected", "deleted":
			return shared.PollFailed
		}
	}
	if v.ProcessingDetails != nil {
		switch v.ProcessingDetails.ProcessingStatus {
		case "succeeded":
			return shared.PollReady
		case "failed", "terminated":
			return shared.PollFailed
		case "processing":
			return shared.PollPending
		}
	}
	if v.Status != nil && v.Status.UploadStatus == "processed" {
		return shared.PollReady
	}
	return shared.PollPending
}

// Update rewrites title, description, tags and privacy of an uploaded video.
// The current snippet is fetched first so unchanged fields survive.
func (p *Publisher) Update(ctx context.Context, externalID string, req *model.PublishRequest) *model.PublishResult {
	if externalID == "" || req == nil {
		return model.Failed(p.Platform(), fmt.Errorf("%w: video id and request are required", model.ErrValidation))
	}
	svc, err := p.service(ctx)
	if err != nil {
		return model.Failed(p.Platform(), err)
	}
	existing, err := svc.Videos.List([]string{"snippet", "status"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	if len(existing.Items) == 0 {
		return model.Failed(p.Platform(), model.NewPlatformError(model.KindProtocol, "videoNotFound", "video not found: %s", externalID))
	}
	video := existing.Items[0]
	if video.Snippet == nil {
		video.Snippet = &youtube.VideoSnippet{}
	}
	if t := strings.TrimSpace(req.Title); t != "" {
		video.Snippet.Title = shared.Truncate(t, maxTitleLength)
	}
	if d := shared.ComposeCaption(req); d != "" {
		video.Snippet.Description = shared.Truncate(d, maxDescriptionLength)
	}
	if tags := cleanTags(req.Hashtags); len(tags) > 0 {
		video.Snippet.Tags = tags
	}
	if req.Visibility != "" {
		if video.Status == nil {
			video.Status = &youtube.VideoStatus{}
		}
		video.Status.PrivacyStatus = p.privacy(req)
	}

	updated, err := svc.Videos.Update([]string{"snippet", "status"}, video).Context(ctx).Do()
	if err != nil {
		return model.Failed(p.Platform(), apiError(err))
	}
	return model.Succeeded(p.Platform(), updated.Id, watchURL+updated.Id)
}

func (p *Publisher) Delete(ctx context.Context, externalID string) (bool, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return false, err
	}
	if err := svc.Videos.Delete(externalID).Context(ctx).Do(); err != nil {
		return false, apiError(err)
	}
	return true, nil
}

func (p *Publisher) GetMetrics(ctx context.Context, externalID string) (*model.Metrics, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"statistics"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		return nil, apiError(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return nil, model.NewPlatformError(model.KindProtocol, "videoNotFound", "video not found: %s", externalID)
	}
	s := resp.Items[0].Statistics
	return &model.Metrics{
		Views:    int64(s.ViewCount),
		Likes:    int64(s.LikeCount),
		Comments: int64(s.CommentCount),
	}, nil
}

func (p *Publisher) VerifyAuth(ctx context.Context) (bool, error) {
	return p.tokens.VerifyAuth(ctx)
}

func (p *Publisher) service(ctx context.Context) (*youtube.Service, error) {
	token, err := p.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return newService(ctx, p.client, token, p.cfg.APIBaseURL)
}
