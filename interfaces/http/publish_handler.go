package http

import (
	"fmt"
	"net/http"

	"content-publisher/domain/dto"
	"content-publisher/infrastructure/logger"
	"content-publisher/usecase"

	"github.com/gin-gonic/gin"
)

type IPublishHandler interface {
	Enqueue(c *gin.Context)
	PublishNow(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Metrics(c *gin.Context)
}

type PublishHandler struct {
	publishUsecase usecase.IPublishUsecase
}

func NewPublishHandler(publishUsecase usecase.IPublishUsecase) IPublishHandler {
	return &PublishHandler{publishUsecase: publishUsecase}
}

func bindPublish(c *gin.Context) (dto.PublishRequestDto, bool) {
	var req dto.PublishRequestDto
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithField("error", err).Error(ErrorUnmarshal)
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: fmt.Sprintf("%s %v", ErrorUnmarshal, err)})
		return req, false
	}
	return req, true
}

// Enqueue handles POST /api/publish
func (h *PublishHandler) Enqueue(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	req, valid := bindPublish(c)
	if !valid {
		return
	}
	jobs, err := h.publishUsecase.EnqueuePublish(c.Request.Context(), user, req.ToModel(), req.RunAt)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, jobs)
}

// PublishNow handles POST /api/publish/now
func (h *PublishHandler) PublishNow(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	req, valid := bindPublish(c)
	if !valid {
		return
	}
	results, err := h.publishUsecase.PublishNow(c.Request.Context(), user, req.ToModel())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, results)
}

// Update handles POST /api/posts/:platform/:externalId/update
func (h *PublishHandler) Update(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	req, valid := bindPublish(c)
	if !valid {
		return
	}
	job, err := h.publishUsecase.EnqueueUpdate(c.Request.Context(), user, c.Param("platform"), c.Param("externalId"), req.ToModel())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, dto.EnqueuedJob{Platform: c.Param("platform"), JobID: job.ID})
}

// Delete handles DELETE /api/posts/:platform/:externalId
func (h *PublishHandler) Delete(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	deleted, err := h.publishUsecase.Delete(c.Request.Context(), user, c.Param("platform"), c.Param("externalId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": deleted})
}

// Metrics handles GET /api/posts/:platform/:externalId/metrics
func (h *PublishHandler) Metrics(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	m, err := h.publishUsecase.Metrics(c.Request.Context(), user, c.Param("platform"), c.Param("externalId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}
