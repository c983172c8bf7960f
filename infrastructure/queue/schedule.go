package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/logger"
)

// schedule enqueues one job per period. The period start is part of the
// unique key, so replicas racing on the same period create a single job.
type schedule struct {
	name    string
	jobType model.JobType
	payload interface{}
	every   time.Duration
	last    time.Time
}

// Schedule registers a recurring job. The first run is due immediately.
func (q *Queue) Schedule(name string, t model.JobType, payload interface{}, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.schedules {
		if s.name == name {
			return fmt.Errorf("schedule %s already registered", name)
		}
	}
	q.schedules = append(q.schedules, &schedule{name: name, jobType: t, payload: payload, every: every})
	return nil
}

// PeriodKey is the unique key of the job a schedule creates for the period containing at.
func PeriodKey(name string, every time.Duration, at time.Time) string {
	return fmt.Sprintf("schedule:%s:%d", name, at.Truncate(every).Unix())
}

func (q *Queue) runSchedules(ctx context.Context) {
	q.mu.RLock()
	due := make([]*schedule, 0, len(q.schedules))
	now := q.now()
	for _, s := range q.schedules {
		if s.last.IsZero() || !now.Truncate(s.every).Equal(s.last.Truncate(s.every)) {
			due = append(due, s)
		}
	}
	q.mu.RUnlock()

	for _, s := range due {
		key := PeriodKey(s.name, s.every, now)
		_, err := q.Enqueue(ctx, s.jobType, s.payload, WithUniqueKey(key))
		switch {
		case err == nil:
			logger.GetLogger().WithField("schedule", s.name).WithField("unique_key", key).Info("Scheduled job enqueued")
		case errors.Is(err, ErrDuplicateJob):
			// another replica took this period
		default:
			logger.GetLogger().WithField("schedule", s.name).WithField("error", err).Error("Failed to enqueue scheduled job")
			continue
		}
		q.mu.Lock()
		s.last = now
		q.mu.Unlock()
	}
}
