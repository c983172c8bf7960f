package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"content-publisher/domain/dto"
	"content-publisher/domain/model"
	"content-publisher/infrastructure/queue"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublishUsecase struct {
	mock.Mock
}

func (m *MockPublishUsecase) EnqueuePublish(ctx context.Context, userID string, req model.PublishRequest, runAt *time.Time) ([]dto.EnqueuedJob, error) {
	args := m.Called(ctx, userID, req, runAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dto.EnqueuedJob), args.Error(1)
}

func (m *MockPublishUsecase) EnqueueUpdate(ctx context.Context, userID, platform, externalID string, req model.PublishRequest) (*model.Job, error) {
	args := m.Called(ctx, userID, platform, externalID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockPublishUsecase) EnqueueRefreshToken(ctx context.Context, userID, platform string, force bool) (*model.Job, error) {
	args := m.Called(ctx, userID, platform, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockPublishUsecase) PublishNow(ctx context.Context, userID string, req model.PublishRequest) ([]*model.PublishResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PublishResult), args.Error(1)
}

func (m *MockPublishUsecase) Delete(ctx context.Context, userID, platform, externalID string) (bool, error) {
	args := m.Called(ctx, userID, platform, externalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPublishUsecase) Metrics(ctx context.Context, userID, platform, externalID string) (*model.Metrics, error) {
	args := m.Called(ctx, userID, platform, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Metrics), args.Error(1)
}

func (m *MockPublishUsecase) Stats(ctx context.Context) (dto.JobStatsResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(dto.JobStatsResponse), args.Error(1)
}

func (m *MockPublishUsecase) GetJob(ctx context.Context, id string) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockPublishUsecase) FailedJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockPublishUsecase) RetryJob(ctx context.Context, id string) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

type MockCredentialUsecase struct {
	mock.Mock
}

func (m *MockCredentialUsecase) Connect(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	args := m.Called(ctx, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockCredentialUsecase) Status(ctx context.Context, userID, platform string) (dto.CredentialStatusResponse, error) {
	args := m.Called(ctx, userID, platform)
	return args.Get(0).(dto.CredentialStatusResponse), args.Error(1)
}

func (m *MockCredentialUsecase) Refresh(ctx context.Context, userID, platform string) (*model.Credential, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockCredentialUsecase) History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error) {
	args := m.Called(ctx, userID, platform, limit)
	return args.Get(0).([]model.CredentialAudit), args.Error(1)
}

// withUser stands in for the auth middleware.
func withUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", id)
		c.Next()
	}
}

func newRouter(pu *MockPublishUsecase, cu *MockCredentialUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", withUser("u1"))
	ph := NewPublishHandler(pu)
	jh := NewJobHandler(pu)
	ch := NewCredentialHandler(cu, pu)
	api.POST("/publish", ph.Enqueue)
	api.POST("/publish/now", ph.PublishNow)
	api.POST("/posts/:platform/:externalId/update", ph.Update)
	api.DELETE("/posts/:platform/:externalId", ph.Delete)
	api.GET("/posts/:platform/:externalId/metrics", ph.Metrics)
	api.GET("/jobs/stats", jh.Stats)
	api.GET("/jobs/:id", jh.Get)
	api.POST("/jobs/:id/retry", jh.Retry)
	api.PUT("/credentials/:platform", ch.Connect)
	api.POST("/credentials/:platform/refresh", ch.Refresh)
	r.GET("/healthz", NewHealthHandler(nil).Healthz)
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEnqueuePublish(t *testing.T) {
	pu := new(MockPublishUsecase)
	pu.On("EnqueuePublish", mock.Anything, "u1", mock.MatchedBy(func(r model.PublishRequest) bool {
		return r.Body == "hi" && len(r.Media) == 1 && r.Media[0].Type == model.MediaImage
	}), (*time.Time)(nil)).Return([]dto.EnqueuedJob{{Platform: "instagram", JobID: "j1"}}, nil)

	w := do(newRouter(pu, nil), http.MethodPost, "/api/publish", dto.PublishRequestDto{
		Body:      "hi",
		Media:     []dto.MediaDto{{Type: "image", URL: "https://cdn.test/a.jpg"}},
		Platforms: []string{"instagram"},
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"jobId":"j1"`)
}

func TestEnqueuePublish_ValidationIs400(t *testing.T) {
	pu := new(MockPublishUsecase)
	pu.On("EnqueuePublish", mock.Anything, "u1", mock.Anything, mock.Anything).Return(nil, model.ErrValidation)

	w := do(newRouter(pu, nil), http.MethodPost, "/api/publish", dto.PublishRequestDto{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(pu, nil), http.MethodPost, "/api/publish", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishNow_ReturnsPerPlatformResults(t *testing.T) {
	pu := new(MockPublishUsecase)
	pu.On("PublishNow", mock.Anything, "u1", mock.Anything).Return([]*model.PublishResult{
		model.Succeeded("wordpress", "1", ""),
		model.Failed("tiktok", model.ErrNotImplemented),
	}, nil)

	w := do(newRouter(pu, nil), http.MethodPost, "/api/publish/now", dto.PublishRequestDto{Body: "x", Platforms: []string{"wordpress", "tiktok"}})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Data []model.PublishResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Data, 2)
	assert.True(t, res.Data[0].Success)
	assert.Equal(t, model.KindNotImplemented, res.Data[1].ErrorKind)
}

func TestPostRoutes(t *testing.T) {
	pu := new(MockPublishUsecase)
	pu.On("EnqueueUpdate", mock.Anything, "u1", "youtube", "vid", mock.Anything).Return(&model.Job{ID: "j2"}, nil)
	pu.On("Delete", mock.Anything, "u1", "medium", "p1").Return(false, model.NewPlatformError(model.KindUnsupported, "", "medium cannot delete"))
	pu.On("Metrics", mock.Anything, "u1", "reddit", "t3_x").Return(nil, model.NewPlatformError(model.KindRateLimited, "429", "slow down"))
	r := newRouter(pu, nil)

	w := do(r, http.MethodPost, "/api/posts/youtube/vid/update", dto.PublishRequestDto{Title: "new"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"jobId":"j2"`)

	w = do(r, http.MethodDelete, "/api/posts/medium/p1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodGet, "/api/posts/reddit/t3_x/metrics", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestJobRoutes(t *testing.T) {
	pu := new(MockPublishUsecase)
	pu.On("Stats", mock.Anything).Return(dto.JobStatsResponse{JobStats: model.JobStats{Waiting: 2}, Concurrency: 5}, nil)
	pu.On("GetJob", mock.Anything, "missing").Return(nil, model.ErrJobNotFound)
	pu.On("RetryJob", mock.Anything, "done").Return(nil, queue.ErrJobNotRetryable)
	r := newRouter(pu, nil)

	w := do(r, http.MethodGet, "/api/jobs/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"waiting":2`)
	assert.Contains(t, w.Body.String(), `"concurrency":5`)

	w = do(r, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/jobs/done/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCredentialConnect(t *testing.T) {
	cu := new(MockCredentialUsecase)
	cu.On("Connect", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool {
		return c.UserID == "u1" && c.Platform == "wordpress" && c.AccessToken == "app-pass" && c.TokenType == "basic"
	})).Return(&model.Credential{UserID: "u1", Platform: "wordpress", Version: 1}, nil)

	w := do(newRouter(nil, cu), http.MethodPut, "/api/credentials/wordpress", dto.CredentialRequestDto{
		AccessToken:         "app-pass",
		PlatformAccountID:   "https://blog.test",
		PlatformAccountName: "editor",
		TokenType:           "Basic",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "app-pass")
}

func TestCredentialRefresh_AsyncEnqueuesForcedJob(t *testing.T) {
	pu := new(MockPublishUsecase)
	cu := new(MockCredentialUsecase)
	pu.On("EnqueueRefreshToken", mock.Anything, "u1", "youtube", true).Return(&model.Job{ID: "r1"}, nil)
	cu.On("Refresh", mock.Anything, "u1", "medium").Return(nil, model.NewPlatformError(model.KindAuth, "6003", "token revoked"))
	r := newRouter(pu, cu)

	w := do(r, http.MethodPost, "/api/credentials/youtube/refresh?async=true", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(r, http.MethodPost, "/api/credentials/medium/refresh", nil)
	assert.Equal(t, http.StatusFailedDependency, w.Code)
}

func TestHealthz(t *testing.T) {
	w := do(newRouter(nil, nil), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
