package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"

	mssql "github.com/microsoft/go-mssqldb"
)

// JobRepositoryMSSQL is the SQL Server job store.
type JobRepositoryMSSQL struct{ db *sql.DB }

func NewJobRepositoryMSSQL(db *sql.DB) *JobRepositoryMSSQL { return &JobRepositoryMSSQL{db: db} }

func (r *JobRepositoryMSSQL) Create(ctx context.Context, j *model.Job) (bool, error) {
	q := `INSERT INTO dbo.[publish_jobs] (id, type, payload, status, attempts, max_attempts, run_at, unique_key, created_at, updated_at)
VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p9)`
	_, err := r.db.ExecContext(ctx, q, j.ID, string(j.Type), string(j.Payload), string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt, nullString(j.UniqueKey), j.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return true, nil
}

// ClaimDue uses UPDLOCK+READPAST so concurrent workers skip rows another worker holds.
func (r *JobRepositoryMSSQL) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	q := `WITH due AS (
    SELECT TOP (@p2) * FROM dbo.[publish_jobs] WITH (UPDLOCK, READPAST, ROWLOCK)
    WHERE status='waiting' AND run_at <= @p1
    ORDER BY run_at ASC
)
UPDATE due SET status='active', attempts=attempts+1, updated_at=@p1
OUTPUT INSERTED.id, INSERTED.type, INSERTED.payload, INSERTED.status, INSERTED.attempts, INSERTED.max_attempts, INSERTED.run_at, INSERTED.last_error, INSERTED.result, INSERTED.unique_key, INSERTED.created_at, INSERTED.updated_at, INSERTED.finished_at;`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepositoryMSSQL) Complete(ctx context.Context, id string, result json.RawMessage) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET status='completed', result=@p1, last_error=NULL, updated_at=@p2, finished_at=@p2 WHERE id=@p3`, nullJSON(result), now, id)
	return err
}

func (r *JobRepositoryMSSQL) Retry(ctx context.Context, id string, runAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET status='waiting', run_at=@p1, last_error=@p2, updated_at=@p3 WHERE id=@p4`, runAt, lastErr, time.Now().UTC(), id)
	return err
}

func (r *JobRepositoryMSSQL) Fail(ctx context.Context, id string, lastErr string, result json.RawMessage) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET status='failed', last_error=@p1, result=@p2, updated_at=@p3, finished_at=@p3 WHERE id=@p4`, lastErr, nullJSON(result), now, id)
	return err
}

func (r *JobRepositoryMSSQL) Get(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM dbo.[publish_jobs] WHERE id=@p1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	return j, err
}

func (r *JobRepositoryMSSQL) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT TOP (@p2) `+jobColumns+` FROM dbo.[publish_jobs] WHERE status=@p1 ORDER BY updated_at DESC`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepositoryMSSQL) Stats(ctx context.Context) (model.JobStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT_BIG(*) FROM dbo.[publish_jobs] GROUP BY status`)
	if err != nil {
		return model.JobStats{}, err
	}
	return collectStats(rows)
}

func (r *JobRepositoryMSSQL) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET updated_at=@p1 WHERE id=@p2 AND status='active'`, now, id)
	return err
}

func (r *JobRepositoryMSSQL) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET status='waiting', updated_at=@p1 WHERE status='active' AND updated_at < @p2`, time.Now().UTC(), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepositoryMSSQL) Reset(ctx context.Context, id string, runAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[publish_jobs] SET status='waiting', attempts=0, run_at=@p1, last_error=NULL, finished_at=NULL, updated_at=@p2 WHERE id=@p3 AND status='failed'`, runAt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// isDuplicateKey matches SQL Server unique index (2601) and constraint (2627) violations.
func isDuplicateKey(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2601 || msErr.Number == 2627
	}
	return false
}
