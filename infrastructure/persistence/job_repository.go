package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-publisher/domain/model"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_at, last_error, result, unique_key, created_at, updated_at, finished_at`

// JobRepository is the PostgreSQL job store behind the durable queue.
type JobRepository struct{ db *sql.DB }

func NewJobRepository(db *sql.DB) *JobRepository { return &JobRepository{db: db} }

func (r *JobRepository) Create(ctx context.Context, j *model.Job) (bool, error) {
	q := `INSERT INTO publish_jobs (id, type, payload, status, attempts, max_attempts, run_at, unique_key, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		  ON CONFLICT (unique_key) DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, j.ID, string(j.Type), string(j.Payload), string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt, nullString(j.UniqueKey), j.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimDue locks due rows with SKIP LOCKED so concurrent workers never claim the same job.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	q := `UPDATE publish_jobs SET status='active', attempts=attempts+1, updated_at=$1
		  WHERE id IN (
			SELECT id FROM publish_jobs WHERE status='waiting' AND run_at <= $1
			ORDER BY run_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED)
		  RETURNING ` + jobColumns
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepository) Complete(ctx context.Context, id string, result json.RawMessage) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='completed', result=$1, last_error=NULL, updated_at=$2, finished_at=$2 WHERE id=$3`, nullJSON(result), now, id)
	return err
}

func (r *JobRepository) Retry(ctx context.Context, id string, runAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='waiting', run_at=$1, last_error=$2, updated_at=$3 WHERE id=$4`, runAt, lastErr, time.Now().UTC(), id)
	return err
}

func (r *JobRepository) Fail(ctx context.Context, id string, lastErr string, result json.RawMessage) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='failed', last_error=$1, result=$2, updated_at=$3, finished_at=$3 WHERE id=$4`, lastErr, nullJSON(result), now, id)
	return err
}

func (r *JobRepository) Get(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM publish_jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	return j, err
}

func (r *JobRepository) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM publish_jobs WHERE status=$1 ORDER BY updated_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepository) Stats(ctx context.Context) (model.JobStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM publish_jobs GROUP BY status`)
	if err != nil {
		return model.JobStats{}, err
	}
	return collectStats(rows)
}

func (r *JobRepository) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET updated_at=$1 WHERE id=$2 AND status='active'`, now, id)
	return err
}

func (r *JobRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='waiting', updated_at=$1 WHERE status='active' AND updated_at < $2`, time.Now().UTC(), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepository) Reset(ctx context.Context, id string, runAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='waiting', attempts=0, run_at=$1, last_error=NULL, finished_at=NULL, updated_at=$2 WHERE id=$3 AND status='failed'`, runAt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var jobType, status string
	var payload, result []byte
	var lastErr, uniqueKey sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&j.ID, &jobType, &payload, &status, &j.Attempts, &j.MaxAttempts, &j.RunAt, &lastErr, &result, &uniqueKey, &j.CreatedAt, &j.UpdatedAt, &finished); err != nil {
		return nil, err
	}
	j.Type = model.JobType(jobType)
	j.Status = model.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	if lastErr.Valid {
		v := lastErr.String
		j.LastError = &v
	}
	if uniqueKey.Valid {
		v := uniqueKey.String
		j.UniqueKey = &v
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}
	return j, nil
}

func collectJobs(rows *sql.Rows) ([]*model.Job, error) {
	defer rows.Close()
	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func collectStats(rows *sql.Rows) (model.JobStats, error) {
	defer rows.Close()
	var stats model.JobStats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		switch model.JobStatus(status) {
		case model.JobWaiting:
			stats.Waiting = n
		case model.JobActive:
			stats.Active = n
		case model.JobCompleted:
			stats.Completed = n
		case model.JobFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
