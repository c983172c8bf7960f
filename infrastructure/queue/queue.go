package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateJob    = errors.New("job with this unique key already exists")
	ErrJobNotRetryable = errors.New("only failed jobs can be retried")
)

// Handler runs one job. The returned result is stored on the job whether the
// run succeeded or not.
type Handler func(ctx context.Context, job *model.Job) (json.RawMessage, error)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type Options struct {
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	PollInterval time.Duration
	// StaleAfter is how long an active job may go untouched before it is
	// assumed orphaned by a crashed worker.
	StaleAfter time.Duration
}

func OptionsFrom(cfg configuration.Queue) Options {
	return Options{
		Concurrency:  cfg.Concurrency,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		BackoffMax:   cfg.BackoffMax,
		PollInterval: cfg.PollInterval,
		StaleAfter:   cfg.StaleAfter,
	}
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = configuration.DefaultConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = configuration.DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = configuration.DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = configuration.DefaultBackoffMax
	}
	if o.PollInterval <= 0 {
		o.PollInterval = configuration.DefaultPollInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = configuration.DefaultStaleAfter
	}
}

// Queue runs durable jobs from an IJobStore with a bounded worker pool.
type Queue struct {
	store     repository.IJobStore
	opts      Options
	notifiers []repository.IJobNotifier
	now       func() time.Time

	mu        sync.RWMutex
	handlers  map[model.JobType]Handler
	schedules []*schedule

	wake chan struct{}
}

func New(store repository.IJobStore, opts Options, notifiers ...repository.IJobNotifier) *Queue {
	opts.defaults()
	return &Queue{
		store:     store,
		opts:      opts,
		notifiers: notifiers,
		now:       utils.GetCurrentTime,
		handlers:  map[model.JobType]Handler{},
		wake:      make(chan struct{}, 1),
	}
}

// WithClock replaces the queue clock.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) Concurrency() int { return q.opts.Concurrency }

func (q *Queue) Register(t model.JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

func (q *Queue) handler(t model.JobType) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[t]
	return h, ok
}

type EnqueueOption func(*model.Job)

func WithRunAt(t time.Time) EnqueueOption {
	return func(j *model.Job) { j.RunAt = t.UTC() }
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(j *model.Job) { j.RunAt = j.RunAt.Add(d) }
}

func WithMaxAttempts(n int) EnqueueOption {
	return func(j *model.Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

func WithUniqueKey(key string) EnqueueOption {
	return func(j *model.Job) { j.UniqueKey = &key }
}

// Enqueue stores a waiting job. A taken unique key returns ErrDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, t model.JobType, payload interface{}, opts ...EnqueueOption) (*model.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	now := q.now()
	job := &model.Job{
		ID:          uuid.NewString(),
		Type:        t,
		Payload:     raw,
		Status:      model.JobWaiting,
		MaxAttempts: q.opts.MaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(job)
	}
	created, err := q.store.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrDuplicateJob
	}
	logger.GetLogger().WithField("job_id", job.ID).WithField("type", t).WithField("run_at", job.RunAt).Debug("Job enqueued")
	q.notify(ctx, job, "job.waiting", nil)
	q.poke()
	return job, nil
}

func (q *Queue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Backoff is base·2^(attempt−1), capped at max.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := q.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.opts.BackoffMax || d <= 0 {
			return q.opts.BackoffMax
		}
	}
	if d > q.opts.BackoffMax {
		return q.opts.BackoffMax
	}
	return d
}

// ProcessDue claims the jobs due now, at most one pool's worth, runs them and
// waits for them to finish. It returns how many jobs ran.
func (q *Queue) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := q.store.ClaimDue(ctx, q.now(), q.opts.Concurrency)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.opts.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			q.execute(gctx, job)
			return nil
		})
	}
	return len(jobs), g.Wait()
}

// Run keeps up to Concurrency jobs in flight until ctx is cancelled, then
// waits for running jobs to return. Cancelling ctx only stops claiming:
// handlers run on a context that is never cancelled, so platform calls in
// flight finish and their outcome is recorded.
func (q *Queue) Run(ctx context.Context) error {
	log := logger.GetLogger().WithField("concurrency", q.opts.Concurrency)
	log.Info("Job worker started")
	q.requeueStale(ctx)
	jobCtx := context.WithoutCancel(ctx)

	slots := make(chan struct{}, q.opts.Concurrency)
	var running sync.WaitGroup
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()
	lastStaleCheck := q.now()

	for {
		q.runSchedules(ctx)
		if q.now().Sub(lastStaleCheck) >= q.opts.StaleAfter/2 {
			q.requeueStale(ctx)
			lastStaleCheck = q.now()
		}

		if free := cap(slots) - len(slots); free > 0 && ctx.Err() == nil {
			jobs, err := q.store.ClaimDue(ctx, q.now(), free)
			if err != nil && ctx.Err() == nil {
				log.WithField("error", err).Error("Failed to claim jobs")
			}
			for _, job := range jobs {
				slots <- struct{}{}
				running.Add(1)
				go func(job *model.Job) {
					defer running.Done()
					defer func() { <-slots }()
					q.execute(jobCtx, job)
					q.poke()
				}(job)
			}
		}

		select {
		case <-ctx.Done():
			running.Wait()
			log.Info("Job worker stopped")
			return nil
		case <-ticker.C:
		case <-q.wake:
		}
	}
}

func (q *Queue) requeueStale(ctx context.Context) {
	n, err := q.store.RequeueStale(ctx, q.now().Add(-q.opts.StaleAfter))
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Failed to requeue stale jobs")
		return
	}
	if n > 0 {
		logger.GetLogger().WithField("count", n).Warn("Requeued jobs orphaned by a stopped worker")
	}
}

// execute runs one claimed job and records the outcome. Store writes use a
// context that survives shutdown so the transition is never lost.
func (q *Queue) execute(ctx context.Context, job *model.Job) {
	storeCtx := context.WithoutCancel(ctx)
	log := logger.GetLogger().
		WithField("job_id", job.ID).
		WithField("type", job.Type).
		WithField("attempt", job.Attempts)

	q.notify(storeCtx, job, "job.active", nil)

	h, ok := q.handler(job.Type)
	var (
		result json.RawMessage
		err    error
	)
	if !ok {
		err = Permanent(fmt.Errorf("%w: %s", model.ErrUnknownJobType, job.Type))
	} else {
		stop := q.heartbeat(storeCtx, job.ID)
		result, err = q.safeRun(ctx, h, job)
		stop()
	}

	if err == nil {
		if serr := q.store.Complete(storeCtx, job.ID, result); serr != nil {
			log.WithField("error", serr).Error("Failed to mark job completed")
			return
		}
		now := q.now()
		job.Status, job.Result, job.FinishedAt, job.LastError = model.JobCompleted, result, &now, nil
		log.Info("Job completed")
		q.notify(storeCtx, job, "job.completed", nil)
		return
	}

	msg := err.Error()
	job.LastError, job.Result = &msg, result
	max := job.MaxAttempts
	if max <= 0 {
		max = q.opts.MaxAttempts
	}
	if IsPermanent(err) || job.Attempts >= max {
		if serr := q.store.Fail(storeCtx, job.ID, msg, result); serr != nil {
			log.WithField("error", serr).Error("Failed to mark job failed")
			return
		}
		now := q.now()
		job.Status, job.FinishedAt = model.JobFailed, &now
		log.WithField("error", msg).WithField("permanent", IsPermanent(err)).Error("Job failed")
		q.notify(storeCtx, job, "job.failed", &msg)
		return
	}

	delay := q.Backoff(job.Attempts)
	runAt := q.now().Add(delay)
	if serr := q.store.Retry(storeCtx, job.ID, runAt, msg); serr != nil {
		log.WithField("error", serr).Error("Failed to schedule job retry")
		return
	}
	job.Status, job.RunAt = model.JobWaiting, runAt
	log.WithField("error", msg).WithField("retry_in", delay).Warn("Job failed, retrying")
	q.notify(storeCtx, job, "job.retrying", &msg)
}

// heartbeat touches the running job every StaleAfter/3 so a long upload is
// not mistaken for the leftover of a crashed worker. stop waits for the
// ticker goroutine to exit.
func (q *Queue) heartbeat(ctx context.Context, id string) (stop func()) {
	every := q.opts.StaleAfter / 3
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := q.store.Touch(ctx, id, q.now()); err != nil {
					logger.GetLogger().WithField("job_id", id).WithField("error", err).Warn("Failed to refresh job lease")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (q *Queue) safeRun(ctx context.Context, h Handler, job *model.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) notify(ctx context.Context, job *model.Job, kind string, errMsg *string) {
	if len(q.notifiers) == 0 {
		return
	}
	evt := EventFor(job, kind, errMsg, q.now())
	for _, n := range q.notifiers {
		n.Notify(ctx, evt)
	}
}

// EventFor builds the transition event of job.
func EventFor(job *model.Job, kind string, errMsg *string, at time.Time) model.JobEvent {
	evt := model.JobEvent{
		Type:      kind,
		JobID:     job.ID,
		JobType:   job.Type,
		Status:    job.Status,
		Attempt:   job.Attempts,
		Terminal:  job.Status == model.JobCompleted || job.Status == model.JobFailed,
		Error:     errMsg,
		CreatedAt: at,
	}
	var owner struct {
		UserID   string `json:"user_id"`
		Platform string `json:"platform"`
	}
	if json.Unmarshal(job.Payload, &owner) == nil {
		evt.UserID, evt.Platform = owner.UserID, owner.Platform
	}
	if len(job.Result) > 0 && (job.Type == model.JobPublish || job.Type == model.JobUpdate) {
		var res model.PublishResult
		if json.Unmarshal(job.Result, &res) == nil && res.Platform != "" {
			evt.Result = &res
		}
	}
	return evt
}

func (q *Queue) Stats(ctx context.Context) (model.JobStats, error) {
	return q.store.Stats(ctx)
}

func (q *Queue) Get(ctx context.Context, id string) (*model.Job, error) {
	return q.store.Get(ctx, id)
}

// Failed lists terminally failed jobs, newest first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.store.ListByStatus(ctx, model.JobFailed, limit)
}

// Requeue puts a failed job back to waiting with a fresh attempt budget.
func (q *Queue) Requeue(ctx context.Context, id string) (*model.Job, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobFailed {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotRetryable, id, job.Status)
	}
	now := q.now()
	if err := q.store.Reset(ctx, id, now); err != nil {
		return nil, err
	}
	job.Status, job.Attempts, job.RunAt, job.FinishedAt = model.JobWaiting, 0, now, nil
	q.notify(ctx, job, "job.waiting", nil)
	q.poke()
	return job, nil
}
