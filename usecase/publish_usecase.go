package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"content-publisher/domain/dto"
	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/queue"

	"golang.org/x/sync/errgroup"
)

type IPublishUsecase interface {
	EnqueuePublish(ctx context.Context, userID string, req model.PublishRequest, runAt *time.Time) ([]dto.EnqueuedJob, error)
	EnqueueUpdate(ctx context.Context, userID, platform, externalID string, req model.PublishRequest) (*model.Job, error)
	EnqueueRefreshToken(ctx context.Context, userID, platform string, force bool) (*model.Job, error)
	PublishNow(ctx context.Context, userID string, req model.PublishRequest) ([]*model.PublishResult, error)
	Delete(ctx context.Context, userID, platform, externalID string) (bool, error)
	Metrics(ctx context.Context, userID, platform, externalID string) (*model.Metrics, error)
	Stats(ctx context.Context) (dto.JobStatsResponse, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	FailedJobs(ctx context.Context, limit int) ([]*model.Job, error)
	RetryJob(ctx context.Context, id string) (*model.Job, error)
}

type publishUsecase struct {
	factory repository.IAdapterFactory
	queue   *queue.Queue
}

func NewPublishUsecase(factory repository.IAdapterFactory, q *queue.Queue) IPublishUsecase {
	return &publishUsecase{factory: factory, queue: q}
}

// targets validates req and returns its platforms normalised and de-duplicated.
func (u *publishUsecase) targets(req *model.PublishRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", model.ErrValidation)
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		key := strings.ToLower(strings.TrimSpace(p))
		if norm, err := model.NormalizePlatform(p); err == nil {
			key = norm
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}

func (u *publishUsecase) enabled(platform string) error {
	norm, err := model.NormalizePlatform(platform)
	if err != nil {
		return err
	}
	for _, p := range u.factory.Platforms() {
		if p == norm {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", model.ErrPlatformDisabled, norm)
}

// EnqueuePublish queues one publish job per platform. A platform that cannot
// be queued is reported in its entry and does not stop the others.
func (u *publishUsecase) EnqueuePublish(ctx context.Context, userID string, req model.PublishRequest, runAt *time.Time) ([]dto.EnqueuedJob, error) {
	platforms, err := u.targets(&req)
	if err != nil {
		return nil, err
	}
	var opts []queue.EnqueueOption
	if runAt != nil {
		opts = append(opts, queue.WithRunAt(*runAt))
	}

	out := make([]dto.EnqueuedJob, 0, len(platforms))
	for _, platform := range platforms {
		entry := dto.EnqueuedJob{Platform: platform}
		if err := u.enabled(platform); err != nil {
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}
		job, err := u.queue.Enqueue(ctx, model.JobPublish, model.PublishPayload{UserID: userID, Platform: platform, Request: req}, opts...)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.JobID = job.ID
		}
		out = append(out, entry)
	}
	logger.GetLogger().WithField("user_id", userID).WithField("platforms", platforms).Info("Publish jobs enqueued")
	return out, nil
}

func (u *publishUsecase) EnqueueUpdate(ctx context.Context, userID, platform, externalID string, req model.PublishRequest) (*model.Job, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("%w: external id is required", model.ErrValidation)
	}
	if err := u.enabled(platform); err != nil {
		return nil, err
	}
	norm, _ := model.NormalizePlatform(platform)
	return u.queue.Enqueue(ctx, model.JobUpdate, model.UpdatePayload{
		UserID:     userID,
		Platform:   norm,
		ExternalID: externalID,
		Request:    req,
	})
}

func (u *publishUsecase) EnqueueRefreshToken(ctx context.Context, userID, platform string, force bool) (*model.Job, error) {
	if err := u.enabled(platform); err != nil {
		return nil, err
	}
	norm, _ := model.NormalizePlatform(platform)
	return u.queue.Enqueue(ctx, model.JobRefreshToken, model.RefreshTokenPayload{UserID: userID, Platform: norm, Force: force})
}

// PublishNow calls every adapter directly and concurrently. Each platform gets
// its own result; some may succeed while others fail.
func (u *publishUsecase) PublishNow(ctx context.Context, userID string, req model.PublishRequest) ([]*model.PublishResult, error) {
	platforms, err := u.targets(&req)
	if err != nil {
		return nil, err
	}
	results := make([]*model.PublishResult, len(platforms))
	var g errgroup.Group
	for i, platform := range platforms {
		g.Go(func() error {
			if err := u.enabled(platform); err != nil {
				results[i] = model.Failed(platform, err)
				return nil
			}
			pub, err := u.factory.Create(ctx, platform, userID)
			if err != nil {
				results[i] = model.Failed(platform, err)
				return nil
			}
			r := req
			results[i] = pub.Publish(ctx, &r)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (u *publishUsecase) adapter(ctx context.Context, userID, platform string) (repository.IPublisher, error) {
	if err := u.enabled(platform); err != nil {
		return nil, err
	}
	norm, _ := model.NormalizePlatform(platform)
	return u.factory.Create(ctx, norm, userID)
}

func (u *publishUsecase) Delete(ctx context.Context, userID, platform, externalID string) (bool, error) {
	pub, err := u.adapter(ctx, userID, platform)
	if err != nil {
		return false, err
	}
	return pub.Delete(ctx, externalID)
}

func (u *publishUsecase) Metrics(ctx context.Context, userID, platform, externalID string) (*model.Metrics, error) {
	pub, err := u.adapter(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	return pub.GetMetrics(ctx, externalID)
}

func (u *publishUsecase) Stats(ctx context.Context) (dto.JobStatsResponse, error) {
	stats, err := u.queue.Stats(ctx)
	if err != nil {
		return dto.JobStatsResponse{}, err
	}
	return dto.JobStatsResponse{JobStats: stats, Concurrency: u.queue.Concurrency()}, nil
}

func (u *publishUsecase) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return u.queue.Get(ctx, id)
}

func (u *publishUsecase) FailedJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	return u.queue.Failed(ctx, limit)
}

func (u *publishUsecase) RetryJob(ctx context.Context, id string) (*model.Job, error) {
	return u.queue.Requeue(ctx, id)
}
