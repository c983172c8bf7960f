package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"content-publisher/domain/dto"
	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"
)

type ICredentialUsecase interface {
	Connect(ctx context.Context, cred *model.Credential) (*model.Credential, error)
	Status(ctx context.Context, userID, platform string) (dto.CredentialStatusResponse, error)
	Refresh(ctx context.Context, userID, platform string) (*model.Credential, error)
	History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error)
}

type credentialUsecase struct {
	store   repository.ICredential
	factory repository.IAdapterFactory
	audit   repository.ICredentialAudit
}

// NewCredentialUsecase wires the credential operations. audit may be nil.
func NewCredentialUsecase(store repository.ICredential, factory repository.IAdapterFactory, audit repository.ICredentialAudit) ICredentialUsecase {
	return &credentialUsecase{store: store, factory: factory, audit: audit}
}

// CredentialFromDto maps the connect request onto a credential row.
func CredentialFromDto(userID, platform string, req dto.CredentialRequestDto, now time.Time) *model.Credential {
	cred := &model.Credential{
		UserID:              userID,
		Platform:            platform,
		AccessToken:         req.AccessToken,
		RefreshToken:        req.RefreshToken,
		AccessSecret:        req.AccessSecret,
		PlatformAccountID:   req.PlatformAccountID,
		PlatformAccountName: req.PlatformAccountName,
		Scopes:              req.Scopes,
		TokenType:           strings.ToLower(req.TokenType),
	}
	switch {
	case req.ExpiresAt != nil:
		at := req.ExpiresAt.UTC()
		cred.ExpiresAt = &at
	case req.ExpiresIn > 0:
		at := now.Add(time.Duration(req.ExpiresIn) * time.Second).UTC()
		cred.ExpiresAt = &at
	}
	return cred
}

// Connect stores the credential and drops the cached token manager so the
// next job picks the new tokens up.
func (u *credentialUsecase) Connect(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	platform, err := model.NormalizePlatform(cred.Platform)
	if err != nil {
		return nil, err
	}
	if cred.UserID == "" || strings.TrimSpace(cred.AccessToken) == "" {
		return nil, fmt.Errorf("%w: user and access token are required", model.ErrValidation)
	}
	cred.Platform = platform
	if err := u.store.Upsert(ctx, cred); err != nil {
		return nil, err
	}
	u.factory.Forget(platform, cred.UserID)
	logger.GetLogger().WithField("platform", platform).WithField("user_id", cred.UserID).
		WithField("version", cred.Version).Info("Credential connected")
	return cred, nil
}

// Status reports whether the stored credential still works, probing the
// platform with a read-only call.
func (u *credentialUsecase) Status(ctx context.Context, userID, platform string) (dto.CredentialStatusResponse, error) {
	norm, err := model.NormalizePlatform(platform)
	if err != nil {
		return dto.CredentialStatusResponse{}, err
	}
	res := dto.CredentialStatusResponse{Platform: norm}
	cred, err := u.store.Get(ctx, userID, norm)
	if errors.Is(err, model.ErrCredentialNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Connected = true
	res.ExpiresAt = cred.ExpiresAt
	res.Expired = cred.Expired(utils.GetCurrentTime())
	res.PlatformAccountID = cred.PlatformAccountID
	res.PlatformAccountName = cred.PlatformAccountName

	mgr, err := u.factory.Manager(ctx, norm, userID)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	ok, err := mgr.VerifyAuth(ctx)
	res.Valid = ok
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

func (u *credentialUsecase) Refresh(ctx context.Context, userID, platform string) (*model.Credential, error) {
	norm, err := model.NormalizePlatform(platform)
	if err != nil {
		return nil, err
	}
	mgr, err := u.factory.Manager(ctx, norm, userID)
	if err != nil {
		return nil, err
	}
	if _, err := mgr.Refresh(ctx); err != nil {
		return nil, err
	}
	cred := mgr.Credential()
	return &cred, nil
}

func (u *credentialUsecase) History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error) {
	if u.audit == nil {
		return []model.CredentialAudit{}, nil
	}
	norm, err := model.NormalizePlatform(platform)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return u.audit.History(ctx, userID, norm, limit)
}
