package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"
)

const credentialColumns = `id, user_id, platform, access_token, refresh_token, access_secret, expires_at, platform_account_id, platform_account_name, scopes, token_type, version, created_at, updated_at`

// CredentialRepository is the PostgreSQL credential store.
type CredentialRepository struct{ db *sql.DB }

func NewCredentialRepository(db *sql.DB) *CredentialRepository { return &CredentialRepository{db: db} }

// Upsert writes the credential in one statement keyed by (user_id, platform) and bumps its version.
func (r *CredentialRepository) Upsert(ctx context.Context, c *model.Credential) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	q := `INSERT INTO credentials (user_id, platform, access_token, refresh_token, access_secret, expires_at, platform_account_id, platform_account_name, scopes, token_type, version, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$12)
		  ON CONFLICT (user_id, platform) DO UPDATE SET
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			access_secret=EXCLUDED.access_secret,
			expires_at=EXCLUDED.expires_at,
			platform_account_id=EXCLUDED.platform_account_id,
			platform_account_name=EXCLUDED.platform_account_name,
			scopes=EXCLUDED.scopes,
			token_type=EXCLUDED.token_type,
			version=credentials.version + 1,
			updated_at=EXCLUDED.updated_at
		  RETURNING id, version, created_at`
	row := r.db.QueryRowContext(ctx, q, c.UserID, c.Platform, c.AccessToken, c.RefreshToken, c.AccessSecret, nullTime(c.ExpiresAt), c.PlatformAccountID, c.PlatformAccountName, c.Scopes, c.TokenType, c.CreatedAt, c.UpdatedAt)
	if err := row.Scan(&c.ID, &c.Version, &c.CreatedAt); err != nil {
		return fmt.Errorf("upsert credential %s/%s: %w", c.UserID, c.Platform, err)
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, userID, platform string) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE user_id=$1 AND platform=$2`, userID, platform)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	return c, err
}

func (r *CredentialRepository) ListByPlatform(ctx context.Context, platform string) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE platform=$1 ORDER BY user_id`, platform)
	if err != nil {
		return nil, err
	}
	return collectCredentials(rows)
}

func (r *CredentialRepository) ListExpiring(ctx context.Context, platform string, before time.Time) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE platform=$1 AND expires_at IS NOT NULL AND expires_at < $2 ORDER BY expires_at ASC`, platform, before)
	if err != nil {
		return nil, err
	}
	return collectCredentials(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	c := &model.Credential{}
	var exp sql.NullTime
	var accountName, tokenType sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.AccessToken, &c.RefreshToken, &c.AccessSecret, &exp, &c.PlatformAccountID, &accountName, &c.Scopes, &tokenType, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		c.ExpiresAt = &t
	}
	c.PlatformAccountName = accountName.String
	c.TokenType = tokenType.String
	return c, nil
}

func collectCredentials(rows *sql.Rows) ([]*model.Credential, error) {
	defer rows.Close()
	var list []*model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
