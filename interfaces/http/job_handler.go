package http

import (
	"net/http"
	"strconv"

	"content-publisher/usecase"

	"github.com/gin-gonic/gin"
)

type IJobHandler interface {
	Stats(c *gin.Context)
	Failed(c *gin.Context)
	Get(c *gin.Context)
	Retry(c *gin.Context)
}

type JobHandler struct {
	publishUsecase usecase.IPublishUsecase
}

func NewJobHandler(publishUsecase usecase.IPublishUsecase) IJobHandler {
	return &JobHandler{publishUsecase: publishUsecase}
}

// Stats handles GET /api/jobs/stats
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.publishUsecase.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// Failed handles GET /api/jobs/failed?limit=
func (h *JobHandler) Failed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.publishUsecase.FailedJobs(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, jobs)
}

// Get handles GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.publishUsecase.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

// Retry handles POST /api/jobs/:id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	job, err := h.publishUsecase.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, job)
}
