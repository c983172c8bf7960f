package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureSchemaMSSQL creates the credential and job tables on SQL Server.
func EnsureSchemaMSSQL(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ddl := []string{
		`IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.credentials') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[credentials] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        user_id NVARCHAR(128) NOT NULL,
        platform NVARCHAR(64) NOT NULL,
        access_token NVARCHAR(MAX) NOT NULL,
        refresh_token NVARCHAR(MAX) NOT NULL DEFAULT '',
        access_secret NVARCHAR(MAX) NOT NULL DEFAULT '',
        expires_at DATETIME2 NULL,
        platform_account_id NVARCHAR(255) NOT NULL DEFAULT '',
        platform_account_name NVARCHAR(255) NULL,
        scopes NVARCHAR(MAX) NOT NULL DEFAULT '',
        token_type NVARCHAR(32) NULL,
        version INT NOT NULL DEFAULT 1,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_credentials_user_platform ON dbo.[credentials](user_id, platform);
END`,
		`IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.publish_jobs') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[publish_jobs] (
        id NVARCHAR(64) PRIMARY KEY,
        type NVARCHAR(64) NOT NULL,
        payload NVARCHAR(MAX) NOT NULL,
        status NVARCHAR(16) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_attempts INT NOT NULL,
        run_at DATETIME2 NOT NULL,
        last_error NVARCHAR(MAX) NULL,
        result NVARCHAR(MAX) NULL,
        unique_key NVARCHAR(255) NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL,
        finished_at DATETIME2 NULL
    );
    CREATE INDEX IX_publish_jobs_due ON dbo.[publish_jobs](status, run_at);
    CREATE UNIQUE INDEX UX_publish_jobs_unique_key ON dbo.[publish_jobs](unique_key) WHERE unique_key IS NOT NULL;
END`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema (mssql): %w", err)
		}
	}
	return nil
}
