package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/persistence"
	"content-publisher/infrastructure/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHandlers(f *MockFactory) (*JobHandlers, *queue.Queue, *persistence.MemoryCredentialRepository) {
	store := persistence.NewMemoryCredentialRepository()
	q := queue.New(queue.NewMemoryStore(), queue.Options{}).WithClock(func() time.Time { return fixedNow })
	h := NewJobHandlers(f, store, q, 0)
	h.now = func() time.Time { return fixedNow }
	return h, q, store
}

func publishJob(t *testing.T, platform string) *model.Job {
	raw, err := json.Marshal(model.PublishPayload{UserID: "u1", Platform: platform, Request: model.PublishRequest{Body: "hello"}})
	require.NoError(t, err)
	return &model.Job{ID: "j1", Type: model.JobPublish, Payload: raw, Attempts: 1, MaxAttempts: 3}
}

func decodeResult(t *testing.T, raw json.RawMessage) model.PublishResult {
	var res model.PublishResult
	require.NoError(t, json.Unmarshal(raw, &res))
	return res
}

func TestPublishHandler_Success(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformWordPress}
	f.On("Create", mock.Anything, model.PlatformWordPress, "u1").Return(pub, nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(model.Succeeded(model.PlatformWordPress, "42", "https://blog.test/?p=42"))

	h, _, _ := newHandlers(f)
	raw, err := h.Publish(context.Background(), publishJob(t, model.PlatformWordPress))
	require.NoError(t, err)
	res := decodeResult(t, raw)
	assert.True(t, res.Success)
	assert.Equal(t, "42", res.ExternalPostID)
}

func TestPublishHandler_AuthFailureRefreshesOnceThenSucceeds(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformYouTube}
	mgr := new(MockTokenManager)
	f.On("Create", mock.Anything, model.PlatformYouTube, "u1").Return(pub, nil)
	f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
	mgr.On("Refresh", mock.Anything).Return(&model.TokenGrant{AccessToken: "new"}, nil).Once()
	pub.On("Publish", mock.Anything, mock.Anything).
		Return(model.Failed(model.PlatformYouTube, model.NewPlatformError(model.KindAuth, "401", "expired"))).Once()
	pub.On("Publish", mock.Anything, mock.Anything).
		Return(model.Succeeded(model.PlatformYouTube, "vid", "")).Once()

	h, _, _ := newHandlers(f)
	raw, err := h.Publish(context.Background(), publishJob(t, model.PlatformYouTube))
	require.NoError(t, err)
	assert.True(t, decodeResult(t, raw).Success)
	mgr.AssertNumberOfCalls(t, "Refresh", 1)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublishHandler_RefreshFailureNeedsReconnect(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformYouTube}
	mgr := new(MockTokenManager)
	f.On("Create", mock.Anything, model.PlatformYouTube, "u1").Return(pub, nil)
	f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
	mgr.On("Refresh", mock.Anything).Return(nil, model.NewPlatformError(model.KindAuth, "invalid_grant", "revoked"))
	pub.On("Publish", mock.Anything, mock.Anything).
		Return(model.Failed(model.PlatformYouTube, model.NewPlatformError(model.KindAuth, "401", "expired")))

	h, _, _ := newHandlers(f)
	raw, err := h.Publish(context.Background(), publishJob(t, model.PlatformYouTube))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, model.ErrReconnectRequired)
	assert.Equal(t, model.KindAuth, decodeResult(t, raw).ErrorKind)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublishHandler_StillUnauthorisedAfterRefresh(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformReddit}
	mgr := new(MockTokenManager)
	f.On("Create", mock.Anything, model.PlatformReddit, "u1").Return(pub, nil)
	f.On("Manager", mock.Anything, model.PlatformReddit, "u1").Return(mgr, nil)
	mgr.On("Refresh", mock.Anything).Return(&model.TokenGrant{AccessToken: "new"}, nil)
	pub.On("Publish", mock.Anything, mock.Anything).
		Return(model.Failed(model.PlatformReddit, model.NewPlatformError(model.KindAuth, "403", "forbidden")))

	h, _, _ := newHandlers(f)
	_, err := h.Publish(context.Background(), publishJob(t, model.PlatformReddit))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, model.ErrReconnectRequired)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublishHandler_ErrorKinds(t *testing.T) {
	cases := []struct {
		kind      model.ErrorKind
		permanent bool
	}{
		{model.KindTransient, false},
		{model.KindRateLimited, false},
		{model.KindProtocol, true},
		{model.KindValidation, true},
		{model.KindUnsupported, true},
		{model.KindNotImplemented, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			f := new(MockFactory)
			pub := &MockPublisher{platform: model.PlatformMedium}
			f.On("Create", mock.Anything, model.PlatformMedium, "u1").Return(pub, nil)
			pub.On("Publish", mock.Anything, mock.Anything).
				Return(model.Failed(model.PlatformMedium, model.NewPlatformError(tc.kind, "", "nope")))

			h, _, _ := newHandlers(f)
			raw, err := h.Publish(context.Background(), publishJob(t, model.PlatformMedium))
			require.Error(t, err)
			assert.Equal(t, tc.permanent, queue.IsPermanent(err))
			assert.Equal(t, tc.kind, decodeResult(t, raw).ErrorKind)
		})
	}
}

func TestPublishHandler_MissingCredentialIsPermanent(t *testing.T) {
	f := new(MockFactory)
	f.On("Create", mock.Anything, model.PlatformTwitter, "u1").Return(nil, model.ErrCredentialNotFound)

	h, _, _ := newHandlers(f)
	raw, err := h.Publish(context.Background(), publishJob(t, model.PlatformTwitter))
	assert.True(t, queue.IsPermanent(err))
	assert.False(t, decodeResult(t, raw).Success)
}

func TestPublishHandler_StoreOutageIsRetried(t *testing.T) {
	f := new(MockFactory)
	f.On("Create", mock.Anything, model.PlatformTwitter, "u1").Return(nil, errors.New("connection refused"))

	h, _, _ := newHandlers(f)
	_, err := h.Publish(context.Background(), publishJob(t, model.PlatformTwitter))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}

func TestUpdateHandler(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformWordPress}
	f.On("Create", mock.Anything, model.PlatformWordPress, "u1").Return(pub, nil)
	pub.On("Update", mock.Anything, "42", mock.MatchedBy(func(r *model.PublishRequest) bool { return r.Title == "New" })).
		Return(model.Succeeded(model.PlatformWordPress, "42", ""))

	raw, _ := json.Marshal(model.UpdatePayload{UserID: "u1", Platform: model.PlatformWordPress, ExternalID: "42", Request: model.PublishRequest{Title: "New"}})
	h, _, _ := newHandlers(f)
	out, err := h.Update(context.Background(), &model.Job{Type: model.JobUpdate, Payload: raw})
	require.NoError(t, err)
	assert.True(t, decodeResult(t, out).Success)
}

func refreshJob(t *testing.T, force bool) *model.Job {
	raw, err := json.Marshal(model.RefreshTokenPayload{UserID: "u1", Platform: model.PlatformYouTube, Force: force})
	require.NoError(t, err)
	return &model.Job{Type: model.JobRefreshToken, Payload: raw}
}

func TestRefreshTokenHandler_SkipsOutsideWindow(t *testing.T) {
	f := new(MockFactory)
	mgr := new(MockTokenManager)
	later := fixedNow.Add(30 * 24 * time.Hour)
	f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
	mgr.On("Credential").Return(model.Credential{ExpiresAt: &later, Version: 4})

	h, _, _ := newHandlers(f)
	raw, err := h.RefreshToken(context.Background(), refreshJob(t, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"refreshed":false,"reason":"not_due","expires_at":"`+later.Format(time.RFC3339)+`","version":4}`, string(raw))
	mgr.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestRefreshTokenHandler_RefreshesInsideWindowOrWhenForced(t *testing.T) {
	for _, tc := range []struct {
		name    string
		expires time.Time
		force   bool
	}{
		{"due", fixedNow.Add(3 * 24 * time.Hour), false},
		{"forced", fixedNow.Add(30 * 24 * time.Hour), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := new(MockFactory)
			mgr := new(MockTokenManager)
			renewed := fixedNow.Add(60 * 24 * time.Hour)
			f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
			mgr.On("Credential").Return(model.Credential{ExpiresAt: &tc.expires, Version: 1}).Once()
			mgr.On("Refresh", mock.Anything).Return(&model.TokenGrant{AccessToken: "new"}, nil)
			mgr.On("Credential").Return(model.Credential{ExpiresAt: &renewed, Version: 2})

			h, _, _ := newHandlers(f)
			raw, err := h.RefreshToken(context.Background(), refreshJob(t, tc.force))
			require.NoError(t, err)
			var out refreshOutcome
			require.NoError(t, json.Unmarshal(raw, &out))
			assert.True(t, out.Refreshed)
			assert.Equal(t, 2, out.Version)
			mgr.AssertNumberOfCalls(t, "Refresh", 1)
		})
	}
}

func TestRefreshTokenHandler_RevokedGrantNeedsReconnect(t *testing.T) {
	f := new(MockFactory)
	mgr := new(MockTokenManager)
	soon := fixedNow.Add(time.Hour)
	f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
	mgr.On("Credential").Return(model.Credential{ExpiresAt: &soon})
	mgr.On("Refresh", mock.Anything).Return(nil, model.NewPlatformError(model.KindAuth, "invalid_grant", "revoked"))

	h, _, _ := newHandlers(f)
	_, err := h.RefreshToken(context.Background(), refreshJob(t, false))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, model.ErrReconnectRequired)
}

func TestRefreshTokenHandler_TransientFailureRetries(t *testing.T) {
	f := new(MockFactory)
	mgr := new(MockTokenManager)
	soon := fixedNow.Add(time.Hour)
	f.On("Manager", mock.Anything, model.PlatformYouTube, "u1").Return(mgr, nil)
	mgr.On("Credential").Return(model.Credential{ExpiresAt: &soon})
	mgr.On("Refresh", mock.Anything).Return(nil, model.NewPlatformError(model.KindTransient, "503", "down"))

	h, _, _ := newHandlers(f)
	_, err := h.RefreshToken(context.Background(), refreshJob(t, false))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}

func TestSweepHandler_EnqueuesOncePerExpiringCredential(t *testing.T) {
	f := new(MockFactory)
	h, q, store := newHandlers(f)
	ctx := context.Background()
	soon := fixedNow.Add(2 * 24 * time.Hour)
	far := fixedNow.Add(40 * 24 * time.Hour)
	for _, c := range []*model.Credential{
		{UserID: "u1", Platform: model.PlatformYouTube, AccessToken: "a", ExpiresAt: &soon},
		{UserID: "u2", Platform: model.PlatformYouTube, AccessToken: "b", ExpiresAt: &soon},
		{UserID: "u3", Platform: model.PlatformYouTube, AccessToken: "c", ExpiresAt: &far},
		{UserID: "u4", Platform: model.PlatformYouTube, AccessToken: "d"},
		{UserID: "u1", Platform: model.PlatformMedium, AccessToken: "e", ExpiresAt: &soon},
	} {
		require.NoError(t, store.Upsert(ctx, c))
	}

	raw, _ := json.Marshal(model.SweepPayload{Platform: model.PlatformYouTube})
	job := &model.Job{Type: model.JobSweepExpiringTokens, Payload: raw}

	out, err := h.SweepExpiringTokens(ctx, job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"platform":"youtube","expiring":2,"enqueued":2,"skipped":0}`, string(out))

	out, err = h.SweepExpiringTokens(ctx, job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"platform":"youtube","expiring":2,"enqueued":0,"skipped":2}`, string(out))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Waiting)
}

func TestHandlers_ThroughQueue(t *testing.T) {
	f := new(MockFactory)
	pub := &MockPublisher{platform: model.PlatformWordPress}
	f.On("Create", mock.Anything, model.PlatformWordPress, "u1").Return(pub, nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(model.Succeeded(model.PlatformWordPress, "7", "https://blog.test/?p=7"))

	h, q, _ := newHandlers(f)
	h.Register(q)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, model.JobPublish, model.PublishPayload{UserID: "u1", Platform: model.PlatformWordPress, Request: model.PublishRequest{Body: "x"}})
	require.NoError(t, err)

	n, err := q.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, "7", decodeResult(t, done.Result).ExternalPostID)
}
