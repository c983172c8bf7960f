package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"content-publisher/domain/dto"
	"content-publisher/domain/model"
	"content-publisher/infrastructure/clients/facebook"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"
	"content-publisher/usecase"

	"github.com/gin-gonic/gin"
)

const stateTTL = 10 * time.Minute

type IFacebookOAuthHandler interface {
	GetAuthURL(c *gin.Context)
	Callback(c *gin.Context)
}

type pendingLogin struct {
	userID  string
	pageID  string
	expires time.Time
}

type facebookOAuthHandler struct {
	oauth             *facebook.OAuthClient
	redirectURI       string
	credentialUsecase usecase.ICredentialUsecase
	now               func() time.Time

	stateMu sync.Mutex
	states  map[string]pendingLogin
}

func NewFacebookOAuthHandler(oauth *facebook.OAuthClient, redirectURI string, credentialUsecase usecase.ICredentialUsecase) IFacebookOAuthHandler {
	return &facebookOAuthHandler{
		oauth:             oauth,
		redirectURI:       redirectURI,
		credentialUsecase: credentialUsecase,
		now:               utils.GetCurrentTime,
		states:            map[string]pendingLogin{},
	}
}

func randomState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GetAuthURL handles GET /auth/facebook?page_id=. The optional page id picks
// which managed page gets connected.
func (h *facebookOAuthHandler) GetAuthURL(c *gin.Context) {
	user, found := userID(c)
	if !found {
		return
	}
	if h.redirectURI == "" {
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "facebook oauth not configured"})
		return
	}
	state := randomState()
	h.stateMu.Lock()
	for s, p := range h.states {
		if h.now().After(p.expires) {
			delete(h.states, s)
		}
	}
	h.states[state] = pendingLogin{userID: user, pageID: c.Query("page_id"), expires: h.now().Add(stateTTL)}
	h.stateMu.Unlock()

	ok(c, http.StatusOK, gin.H{"auth_url": h.oauth.AuthURL(state, h.redirectURI), "state": state})
}

func (h *facebookOAuthHandler) takeState(state string) (pendingLogin, bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	p, found := h.states[state]
	if !found {
		return p, false
	}
	delete(h.states, state)
	return p, !h.now().After(p.expires)
}

// Callback handles GET /auth/facebook/callback. The code is traded for a
// long-lived user token, and the selected page token is stored with that user
// token as its refresh grant.
func (h *facebookOAuthHandler) Callback(c *gin.Context) {
	log := logger.GetLogger().WithField("platform", model.PlatformFacebook)
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "missing code"})
		return
	}
	login, valid := h.takeState(c.Query("state"))
	if !valid {
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "invalid_state"})
		return
	}

	ctx := c.Request.Context()
	short, err := h.oauth.ExchangeCode(ctx, code, h.redirectURI)
	if err != nil {
		log.WithField("error", err).Error("facebook token exchange failed")
		fail(c, err)
		return
	}
	long, err := h.oauth.ExchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		log.WithField("error", err).Error("long lived token exchange failed")
		fail(c, err)
		return
	}
	pages, err := h.oauth.Pages(ctx, long.AccessToken)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := facebook.SelectPage(pages, login.pageID)
	if err != nil {
		fail(c, err)
		return
	}

	expiresAt := h.now().Add(long.TTL()).UTC()
	cred, err := h.credentialUsecase.Connect(ctx, &model.Credential{
		UserID:              login.userID,
		Platform:            model.PlatformFacebook,
		AccessToken:         page.AccessToken,
		RefreshToken:        long.AccessToken,
		ExpiresAt:           &expiresAt,
		PlatformAccountID:   page.ID,
		PlatformAccountName: page.Name,
		TokenType:           "page",
	})
	if err != nil {
		fail(c, err)
		return
	}
	log.WithField("user_id", login.userID).WithField("page_id", page.ID).Info("Facebook page connected")
	ok(c, http.StatusOK, gin.H{"page_id": cred.PlatformAccountID, "page_name": cred.PlatformAccountName, "expires_at": cred.ExpiresAt})
}
