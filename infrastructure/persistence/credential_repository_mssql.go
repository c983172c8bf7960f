package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"
)

// CredentialRepositoryMSSQL is the SQL Server credential store.
type CredentialRepositoryMSSQL struct{ db *sql.DB }

func NewCredentialRepositoryMSSQL(db *sql.DB) *CredentialRepositoryMSSQL {
	return &CredentialRepositoryMSSQL{db: db}
}

// Upsert uses a single MERGE keyed by (user_id, platform). HOLDLOCK keeps two
// concurrent merges of the same key from both taking the insert branch.
func (r *CredentialRepositoryMSSQL) Upsert(ctx context.Context, c *model.Credential) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	q := `MERGE dbo.[credentials] WITH (HOLDLOCK) AS target
USING (VALUES (@p1, @p2)) AS src(user_id, platform)
ON target.user_id = src.user_id AND target.platform = src.platform
WHEN MATCHED THEN UPDATE SET
    access_token=@p3,
    refresh_token=@p4,
    access_secret=@p5,
    expires_at=@p6,
    platform_account_id=@p7,
    platform_account_name=@p8,
    scopes=@p9,
    token_type=@p10,
    version=target.version + 1,
    updated_at=@p12
WHEN NOT MATCHED THEN
    INSERT (user_id, platform, access_token, refresh_token, access_secret, expires_at, platform_account_id, platform_account_name, scopes, token_type, version, created_at, updated_at)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10,1,@p11,@p12)
OUTPUT INSERTED.id, INSERTED.version, INSERTED.created_at;`
	row := r.db.QueryRowContext(ctx, q,
		c.UserID, c.Platform,
		c.AccessToken,
		c.RefreshToken,
		c.AccessSecret,
		nullTime(c.ExpiresAt),
		c.PlatformAccountID,
		c.PlatformAccountName,
		c.Scopes,
		c.TokenType,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err := row.Scan(&c.ID, &c.Version, &c.CreatedAt); err != nil {
		return fmt.Errorf("merge credential %s/%s: %w", c.UserID, c.Platform, err)
	}
	return nil
}

func (r *CredentialRepositoryMSSQL) Get(ctx context.Context, userID, platform string) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[credentials] WHERE user_id=@p1 AND platform=@p2`, userID, platform)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	return c, err
}

func (r *CredentialRepositoryMSSQL) ListByPlatform(ctx context.Context, platform string) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[credentials] WHERE platform=@p1 ORDER BY user_id`, platform)
	if err != nil {
		return nil, err
	}
	return collectCredentials(rows)
}

func (r *CredentialRepositoryMSSQL) ListExpiring(ctx context.Context, platform string, before time.Time) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[credentials] WHERE platform=@p1 AND expires_at IS NOT NULL AND expires_at < @p2 ORDER BY expires_at ASC`, platform, before)
	if err != nil {
		return nil, err
	}
	return collectCredentials(rows)
}
