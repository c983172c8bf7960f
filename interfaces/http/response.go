package http

import (
	"errors"
	"net/http"

	"content-publisher/domain/dto"
	"content-publisher/domain/model"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/queue"

	"github.com/gin-gonic/gin"
)

const (
	ErrorUnmarshal = "Error while unmarshal"
	ErrorNoUser    = "user_id missing from token"
)

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.Res{ResponseCode: "00", ResponseMessage: "Success", Data: data})
}

// fail writes err with the status its class maps to.
func fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.GetLogger().WithField("error", err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, dto.Res{ResponseCode: code, ResponseMessage: err.Error()})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrUnknownPlatform):
		return http.StatusBadRequest, "400"
	case errors.Is(err, model.ErrPlatformDisabled):
		return http.StatusForbidden, "403"
	case errors.Is(err, model.ErrCredentialNotFound), errors.Is(err, model.ErrJobNotFound):
		return http.StatusNotFound, "404"
	case errors.Is(err, queue.ErrJobNotRetryable), errors.Is(err, queue.ErrDuplicateJob):
		return http.StatusConflict, "409"
	}
	var pe *model.PlatformError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, "500"
	}
	switch pe.Kind {
	case model.KindUnsupported:
		return http.StatusUnprocessableEntity, "422"
	case model.KindNotImplemented:
		return http.StatusNotImplemented, "501"
	case model.KindAuth:
		return http.StatusFailedDependency, "424"
	case model.KindRateLimited:
		return http.StatusTooManyRequests, "429"
	}
	return http.StatusBadGateway, "502"
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, dto.Res{ResponseCode: "401", ResponseMessage: ErrorNoUser})
		return "", false
	}
	return id, true
}
