package repository

import (
	"context"
	"encoding/json"
	"time"

	"content-publisher/domain/model"
)

// IJobStore persists queue jobs.
type IJobStore interface {
	// Create inserts a job. When UniqueKey is set and already taken, created is false and no row is written.
	Create(ctx context.Context, job *model.Job) (created bool, err error)
	// ClaimDue moves up to limit waiting jobs with run_at <= now to active and increments their attempts.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Retry(ctx context.Context, id string, runAt time.Time, lastErr string) error
	Fail(ctx context.Context, id string, lastErr string, result json.RawMessage) error
	Get(ctx context.Context, id string) (*model.Job, error)
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	Stats(ctx context.Context) (model.JobStats, error)
	// Touch refreshes updated_at of an active job so RequeueStale leaves it alone.
	Touch(ctx context.Context, id string, now time.Time) error
	// RequeueStale returns active jobs untouched since before to waiting.
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
	// Reset puts a failed job back to waiting with a fresh attempt budget.
	Reset(ctx context.Context, id string, runAt time.Time) error
}

// IJobNotifier receives job transition events.
type IJobNotifier interface {
	Notify(ctx context.Context, evt model.JobEvent)
}
