package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPublishUsecase(f *MockFactory) (IPublishUsecase, *queue.Queue) {
	q := queue.New(queue.NewMemoryStore(), queue.Options{}).WithClock(func() time.Time { return fixedNow })
	return NewPublishUsecase(f, q), q
}

func TestEnqueuePublish_OneJobPerPlatform(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformYouTube, model.PlatformTwitter})
	u, q := newPublishUsecase(f)
	ctx := context.Background()

	req := model.PublishRequest{
		Body:      "launch day",
		Media:     []model.MediaItem{{Type: model.MediaVideo, URL: "https://cdn.test/v.mp4"}},
		Platforms: []string{"YouTube", "x", "twitter", "medium", "myspace"},
	}
	jobs, err := u.EnqueuePublish(ctx, "u1", req, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	assert.Equal(t, model.PlatformYouTube, jobs[0].Platform)
	assert.NotEmpty(t, jobs[0].JobID)
	assert.Equal(t, model.PlatformTwitter, jobs[1].Platform)
	assert.NotEmpty(t, jobs[1].JobID)
	assert.Equal(t, model.PlatformMedium, jobs[2].Platform)
	assert.Contains(t, jobs[2].Error, "disabled")
	assert.Equal(t, "myspace", jobs[3].Platform)
	assert.Contains(t, jobs[3].Error, "unknown platform")

	job, err := q.Get(ctx, jobs[0].JobID)
	require.NoError(t, err)
	var p model.PublishPayload
	require.NoError(t, job.DecodePayload(&p))
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, model.PlatformYouTube, p.Platform)
	assert.Equal(t, "launch day", p.Request.Body)
}

func TestEnqueuePublish_Scheduled(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformWordPress})
	u, q := newPublishUsecase(f)
	ctx := context.Background()
	at := fixedNow.Add(2 * time.Hour)

	jobs, err := u.EnqueuePublish(ctx, "u1", model.PublishRequest{Title: "t", Body: "b", Platforms: []string{"wordpress"}}, &at)
	require.NoError(t, err)
	job, err := q.Get(ctx, jobs[0].JobID)
	require.NoError(t, err)
	assert.True(t, job.RunAt.Equal(at))

	n, err := q.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueuePublish_Validation(t *testing.T) {
	f := new(MockFactory)
	u, _ := newPublishUsecase(f)

	_, err := u.EnqueuePublish(context.Background(), "u1", model.PublishRequest{Platforms: []string{"youtube"}}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = u.EnqueuePublish(context.Background(), "u1", model.PublishRequest{Body: "x"}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPublishNow_PartialSuccess(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformWordPress, model.PlatformReddit, model.PlatformTikTok})
	wp := &MockPublisher{platform: model.PlatformWordPress}
	wp.On("Publish", mock.Anything, mock.Anything).Return(model.Succeeded(model.PlatformWordPress, "1", "https://blog.test/?p=1"))
	f.On("Create", mock.Anything, model.PlatformWordPress, "u1").Return(wp, nil)
	f.On("Create", mock.Anything, model.PlatformReddit, "u1").Return(nil, model.ErrCredentialNotFound)
	tt := &MockPublisher{platform: model.PlatformTikTok}
	tt.On("Publish", mock.Anything, mock.Anything).Return(model.Failed(model.PlatformTikTok, model.ErrNotImplemented))
	f.On("Create", mock.Anything, model.PlatformTikTok, "u1").Return(tt, nil)

	u, _ := newPublishUsecase(f)
	results, err := u.PublishNow(context.Background(), "u1", model.PublishRequest{
		Title:     "Hello",
		Body:      "world",
		Platforms: []string{"wordpress", "reddit", "tiktok"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, model.PlatformReddit, results[1].Platform)
	assert.Equal(t, model.KindNotImplemented, results[2].ErrorKind)
}

func TestDeleteAndMetrics(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformFacebook})
	pub := &MockPublisher{platform: model.PlatformFacebook}
	f.On("Create", mock.Anything, model.PlatformFacebook, "u1").Return(pub, nil)
	pub.On("Delete", mock.Anything, "p_1").Return(true, nil)
	pub.On("GetMetrics", mock.Anything, "p_1").Return(&model.Metrics{Likes: 3}, nil)

	u, _ := newPublishUsecase(f)
	ok, err := u.Delete(context.Background(), "u1", "Facebook", "p_1")
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := u.Metrics(context.Background(), "u1", "facebook", "p_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Likes)

	_, err = u.Delete(context.Background(), "u1", "youtube", "v")
	assert.ErrorIs(t, err, model.ErrPlatformDisabled)
}

func TestJobOperations(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformYouTube})
	u, q := newPublishUsecase(f)
	ctx := context.Background()
	q.Register(model.JobRefreshToken, func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
		return nil, queue.Permanent(model.ErrReconnectRequired)
	})

	job, err := u.EnqueueRefreshToken(ctx, "u1", "youtube", true)
	require.NoError(t, err)
	_, err = q.ProcessDue(ctx)
	require.NoError(t, err)

	failed, err := u.FailedJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)

	stats, err := u.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 5, stats.Concurrency)

	retried, err := u.RetryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobWaiting, retried.Status)

	got, err := u.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)

	_, err = u.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestEnqueueUpdate_RequiresExternalID(t *testing.T) {
	f := new(MockFactory)
	f.On("Platforms").Return([]string{model.PlatformYouTube})
	u, _ := newPublishUsecase(f)

	_, err := u.EnqueueUpdate(context.Background(), "u1", "youtube", " ", model.PublishRequest{Title: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	job, err := u.EnqueueUpdate(context.Background(), "u1", "YouTube", "vid", model.PublishRequest{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.JobUpdate, job.Type)
}
