package repository

import (
	"context"
	"time"

	"content-publisher/domain/model"
)

// ICredential is the credential store. Upsert must be a single atomic write keyed by (user, platform).
type ICredential interface {
	Get(ctx context.Context, userID, platform string) (*model.Credential, error)
	Upsert(ctx context.Context, cred *model.Credential) error
	ListByPlatform(ctx context.Context, platform string) ([]*model.Credential, error)
	// ListExpiring returns credentials of platform whose expiry is set and before the given time.
	ListExpiring(ctx context.Context, platform string, before time.Time) ([]*model.Credential, error)
}

// ICredentialAudit keeps the historical versions of credentials.
type ICredentialAudit interface {
	Record(ctx context.Context, audit *model.CredentialAudit) error
	History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error)
}
