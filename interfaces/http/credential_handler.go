package http

import (
	"fmt"
	"net/http"
	"strconv"

	"content-publisher/domain/dto"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"
	"content-publisher/usecase"

	"github.com/gin-gonic/gin"
)

type ICredentialHandler interface {
	Connect(c *gin.Context)
	Status(c *gin.Context)
	Refresh(c *gin.Context)
	History(c *gin.Context)
}

type CredentialHandler struct {
	credentialUsecase usecase.ICredentialUsecase
	publishUsecase    usecase.IPublishUsecase
}

func NewCredentialHandler(credentialUsecase usecase.ICredentialUsecase, publishUsecase usecase.IPublishUsecase) ICredentialHandler {
	return &CredentialHandler{credentialUsecase: credentialUsecase, publishUsecase: publishUsecase}
}

// Connect handles PUT /api/credentials/:platform
func (h *CredentialHandler) Connect(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	var req dto.CredentialRequestDto
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithField("error", err).Error(ErrorUnmarshal)
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: fmt.Sprintf("%s %v", ErrorUnmarshal, err)})
		return
	}
	cred, err := h.credentialUsecase.Connect(c.Request.Context(), usecase.CredentialFromDto(user, c.Param("platform"), req, utils.GetCurrentTime()))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, cred)
}

// Status handles GET /api/credentials/:platform/status
func (h *CredentialHandler) Status(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	res, err := h.credentialUsecase.Status(c.Request.Context(), user, c.Param("platform"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Refresh handles POST /api/credentials/:platform/refresh. With ?async=true
// the refresh runs as a forced refreshToken job.
func (h *CredentialHandler) Refresh(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		job, err := h.publishUsecase.EnqueueRefreshToken(c.Request.Context(), user, c.Param("platform"), true)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusAccepted, dto.EnqueuedJob{Platform: c.Param("platform"), JobID: job.ID})
		return
	}
	cred, err := h.credentialUsecase.Refresh(c.Request.Context(), user, c.Param("platform"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, cred)
}

// History handles GET /api/credentials/:platform/history
func (h *CredentialHandler) History(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	audits, err := h.credentialUsecase.History(c.Request.Context(), user, c.Param("platform"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, audits)
}
