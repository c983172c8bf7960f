package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureSchema creates the credential and job tables when missing and adds
// columns introduced after the first release. Safe to call at startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			access_secret TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NULL,
			platform_account_id TEXT NOT NULL DEFAULT '',
			platform_account_name TEXT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			token_type TEXT NULL,
			version INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, platform)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_platform_expiry ON credentials (platform, expires_at)`,
		`CREATE TABLE IF NOT EXISTS publish_jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL,
			run_at TIMESTAMPTZ NOT NULL,
			last_error TEXT NULL,
			result JSONB NULL,
			unique_key TEXT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_publish_jobs_due ON publish_jobs (status, run_at)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	checks := []struct {
		table  string
		column string
		ddl    string
	}{
		{"credentials", "access_secret", "ALTER TABLE credentials ADD COLUMN access_secret TEXT NOT NULL DEFAULT ''"},
		{"credentials", "version", "ALTER TABLE credentials ADD COLUMN version INT NOT NULL DEFAULT 1"},
	}
	for _, c := range checks {
		exists, err := columnExists(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s failed: %w", c.table, c.column, err)
			}
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	row := db.QueryRowContext(ctx, `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
