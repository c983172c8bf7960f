package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/queue"
	"content-publisher/infrastructure/utils"
)

// JobHandlers runs the queued work against the platform adapters.
type JobHandlers struct {
	factory       repository.IAdapterFactory
	credentials   repository.ICredential
	queue         *queue.Queue
	refreshWindow time.Duration
	now           func() time.Time
}

func NewJobHandlers(factory repository.IAdapterFactory, credentials repository.ICredential, q *queue.Queue, refreshWindow time.Duration) *JobHandlers {
	if refreshWindow <= 0 {
		refreshWindow = configuration.DefaultRefreshWindow
	}
	return &JobHandlers{
		factory:       factory,
		credentials:   credentials,
		queue:         q,
		refreshWindow: refreshWindow,
		now:           utils.GetCurrentTime,
	}
}

// Register binds every job type to q.
func (h *JobHandlers) Register(q *queue.Queue) {
	q.Register(model.JobPublish, h.Publish)
	q.Register(model.JobUpdate, h.Update)
	q.Register(model.JobRefreshToken, h.RefreshToken)
	q.Register(model.JobSweepExpiringTokens, h.SweepExpiringTokens)
}

func (h *JobHandlers) Publish(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p model.PublishPayload
	if err := job.DecodePayload(&p); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode publish payload: %w", err))
	}
	return h.runAdapter(ctx, p.UserID, p.Platform, func(pub repository.IPublisher) *model.PublishResult {
		return pub.Publish(ctx, &p.Request)
	})
}

func (h *JobHandlers) Update(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p model.UpdatePayload
	if err := job.DecodePayload(&p); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode update payload: %w", err))
	}
	return h.runAdapter(ctx, p.UserID, p.Platform, func(pub repository.IPublisher) *model.PublishResult {
		return pub.Update(ctx, p.ExternalID, &p.Request)
	})
}

// runAdapter calls op and maps the result onto the queue retry rules. An auth
// failure refreshes the token once and calls op again; if that also fails on
// auth the user has to reconnect.
func (h *JobHandlers) runAdapter(ctx context.Context, userID, platform string, op func(repository.IPublisher) *model.PublishResult) (json.RawMessage, error) {
	log := logger.GetLogger().WithField("platform", platform).WithField("user_id", userID)

	pub, err := h.factory.Create(ctx, platform, userID)
	if err != nil {
		raw, _ := json.Marshal(model.Failed(platform, err))
		return raw, setupError(err)
	}

	res := op(pub)
	if !res.Success && res.ErrorKind == model.KindAuth {
		log.WithField("error", res.Error).Info("Auth failed, refreshing token")
		if rerr := h.refresh(ctx, platform, userID); rerr != nil {
			return reconnect(platform, fmt.Errorf("%w: %v", model.ErrReconnectRequired, rerr))
		}
		res = op(pub)
		if !res.Success && res.ErrorKind == model.KindAuth {
			return reconnect(platform, fmt.Errorf("%w: %s", model.ErrReconnectRequired, res.Error))
		}
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	if res.Success {
		log.WithField("external_id", res.ExternalPostID).Info("Platform call succeeded")
		return raw, nil
	}
	if res.ErrorKind.Retryable() {
		return raw, res.Err()
	}
	return raw, queue.Permanent(res.Err())
}

func reconnect(platform string, err error) (json.RawMessage, error) {
	raw, _ := json.Marshal(model.Failed(platform, err))
	return raw, queue.Permanent(err)
}

func (h *JobHandlers) refresh(ctx context.Context, platform, userID string) error {
	mgr, err := h.factory.Manager(ctx, platform, userID)
	if err != nil {
		return err
	}
	_, err = mgr.Refresh(ctx)
	return err
}

// setupError decides whether a failure to build the adapter is worth retrying.
func setupError(err error) error {
	switch {
	case errors.Is(err, model.ErrCredentialNotFound),
		errors.Is(err, model.ErrUnknownPlatform),
		errors.Is(err, model.ErrPlatformDisabled):
		return queue.Permanent(err)
	}
	return err
}

type refreshOutcome struct {
	Refreshed bool       `json:"refreshed"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Version   int        `json:"version,omitempty"`
}

// RefreshToken renews a credential that expires inside the refresh window.
// Forced jobs refresh regardless.
func (h *JobHandlers) RefreshToken(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p model.RefreshTokenPayload
	if err := job.DecodePayload(&p); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode refresh payload: %w", err))
	}
	mgr, err := h.factory.Manager(ctx, p.Platform, p.UserID)
	if err != nil {
		return nil, setupError(err)
	}
	cred := mgr.Credential()
	if !p.Force && !cred.ExpiresWithin(h.now(), h.refreshWindow) {
		return json.Marshal(refreshOutcome{Reason: "not_due", ExpiresAt: cred.ExpiresAt, Version: cred.Version})
	}

	if _, err := mgr.Refresh(ctx); err != nil {
		switch kind := model.KindOf(err); {
		case kind == model.KindAuth:
			return nil, queue.Permanent(fmt.Errorf("%w: %v", model.ErrReconnectRequired, err))
		case kind.Retryable():
			return nil, err
		default:
			return nil, queue.Permanent(err)
		}
	}
	cred = mgr.Credential()
	logger.GetLogger().WithField("platform", p.Platform).WithField("user_id", p.UserID).
		WithField("version", cred.Version).Info("Token refreshed")
	return json.Marshal(refreshOutcome{Refreshed: true, ExpiresAt: cred.ExpiresAt, Version: cred.Version})
}

type sweepOutcome struct {
	Platform string `json:"platform"`
	Expiring int    `json:"expiring"`
	Enqueued int    `json:"enqueued"`
	Skipped  int    `json:"skipped"`
}

// SweepExpiringTokens enqueues one refreshToken job per credential of the
// platform expiring inside the refresh window. The unique key includes the
// expiry, so a credential is swept again only after its expiry moved.
func (h *JobHandlers) SweepExpiringTokens(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p model.SweepPayload
	if err := job.DecodePayload(&p); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode sweep payload: %w", err))
	}
	creds, err := h.credentials.ListExpiring(ctx, p.Platform, h.now().Add(h.refreshWindow))
	if err != nil {
		return nil, err
	}

	out := sweepOutcome{Platform: p.Platform, Expiring: len(creds)}
	for _, c := range creds {
		key := fmt.Sprintf("refresh:%s:%s:%d", c.Platform, c.UserID, c.ExpiresAt.Unix())
		_, err := h.queue.Enqueue(ctx, model.JobRefreshToken,
			model.RefreshTokenPayload{UserID: c.UserID, Platform: c.Platform},
			queue.WithUniqueKey(key))
		switch {
		case errors.Is(err, queue.ErrDuplicateJob):
			out.Skipped++
		case err != nil:
			return nil, err
		default:
			out.Enqueued++
		}
	}
	logger.GetLogger().WithField("platform", p.Platform).WithField("expiring", out.Expiring).
		WithField("enqueued", out.Enqueued).Info("Expiring token sweep finished")
	return json.Marshal(out)
}
