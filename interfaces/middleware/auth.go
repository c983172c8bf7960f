package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"content-publisher/domain/dto"
	"content-publisher/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// Auth validates the HS256 bearer token and sets user_id from its subject,
// falling back to the issuer. Browsers opening an EventSource cannot send
// headers, so an access_token query parameter is accepted too.
func Auth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res := dto.Res{ResponseCode: "401", ResponseMessage: "Unauthorized"}

		raw := bearer(ctx.Request.Header.Get("Authorization"))
		if raw == "" {
			raw = ctx.Query("access_token")
		}
		if raw == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}

		claims, token, err := getClaim(raw, secretKey)
		if err != nil || !token.Valid {
			res.ResponseMessage = abortMessage(err)
			logger.GetLogger().WithField("error", err).Debug("Rejected token")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}
		user := claims.Subject
		if user == "" {
			user = claims.Issuer
		}
		if user == "" {
			res.ResponseMessage = "token has no subject"
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}
		ctx.Set("user_id", user)
		ctx.Next()
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func abortMessage(err error) string {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		if ve.Errors&jwt.ValidationErrorMalformed != 0 {
			return "That's not even a token"
		} else if ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
			// Token is either expired or not active yet
			return "Timing is everything"
		}
		return fmt.Sprintf("Couldn't handle this token:%v", err)
	}
	return "Unauthorized"
}

func getClaim(raw, secretKey string) (jwt.StandardClaims, *jwt.Token, error) {
	var claims jwt.StandardClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	return claims, token, err
}
