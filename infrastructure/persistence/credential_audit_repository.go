package persistence

import (
	"context"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const credentialAuditCollection = "credential_audit"

type CredentialAuditRepository struct {
	collection *mongo.Collection
}

func NewCredentialAuditRepository(client *mongo.Client, dbName string) repository.ICredentialAudit {
	return &CredentialAuditRepository{collection: client.Database(dbName).Collection(credentialAuditCollection)}
}

func (r *CredentialAuditRepository) Record(ctx context.Context, audit *model.CredentialAudit) error {
	_, err := r.collection.InsertOne(ctx, audit)
	return err
}

func (r *CredentialAuditRepository) History(ctx context.Context, userID, platform string, limit int64) ([]model.CredentialAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "platform", Value: platform}}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	var out []model.CredentialAudit
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuditedCredentialStore writes every upsert through to the audit trail.
// Audit failures are logged and never fail the write.
type AuditedCredentialStore struct {
	repository.ICredential
	audit repository.ICredentialAudit
}

func NewAuditedCredentialStore(store repository.ICredential, audit repository.ICredentialAudit) repository.ICredential {
	if audit == nil {
		return store
	}
	return &AuditedCredentialStore{ICredential: store, audit: audit}
}

func (s *AuditedCredentialStore) Upsert(ctx context.Context, cred *model.Credential) error {
	var previousRefresh string
	if prev, err := s.ICredential.Get(ctx, cred.UserID, cred.Platform); err == nil && prev != nil {
		previousRefresh = prev.RefreshToken
	}
	if err := s.ICredential.Upsert(ctx, cred); err != nil {
		return err
	}
	entry := &model.CredentialAudit{
		UserID:            cred.UserID,
		Platform:          cred.Platform,
		Version:           cred.Version,
		AccessTokenMasked: utils.MaskToken(cred.AccessToken),
		RotatedRefresh:    previousRefresh != "" && previousRefresh != cred.RefreshToken,
		ExpiresAt:         cred.ExpiresAt,
		PlatformAccountID: cred.PlatformAccountID,
		RecordedAt:        time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		logger.GetLogger().
			WithField("user_id", cred.UserID).
			WithField("platform", cred.Platform).
			WithField("error", err).
			Warn("Failed to record credential audit")
	}
	return nil
}
