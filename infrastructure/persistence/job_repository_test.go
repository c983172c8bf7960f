package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"content-publisher/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{"id", "type", "payload", "status", "attempts", "max_attempts", "run_at", "last_error", "result", "unique_key", "created_at", "updated_at", "finished_at"}

func newTestJob(now time.Time, key *string) *model.Job {
	return &model.Job{
		ID:          "job-1",
		Type:        model.JobPublish,
		Payload:     json.RawMessage(`{"userId":"u1","platform":"wordpress"}`),
		Status:      model.JobWaiting,
		MaxAttempts: 3,
		RunAt:       now,
		UniqueKey:   key,
		CreatedAt:   now,
	}
}

func TestJobRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	key := "sweep:instagram:2025-01-02"
	job := newTestJob(now, &key)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO publish_jobs`)).
		WithArgs("job-1", "publish", string(job.Payload), "waiting", 0, 3, now, key, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (unique_key) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	created, err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.Create(context.Background(), job)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WithArgs(now, 5).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "publish", `{"platform":"wordpress"}`, "active", 1, 3, now, nil, nil, nil, now, now, nil))

	jobs, err := NewJobRepository(db).ClaimDue(context.Background(), now, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, model.JobActive, jobs[0].Status)
	require.Equal(t, 1, jobs[0].Attempts)
	require.Nil(t, jobs[0].LastError)
	require.Nil(t, jobs[0].Result)
	require.JSONEq(t, `{"platform":"wordpress"}`, string(jobs[0].Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_GetFailedKeepsErrorAndResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM publish_jobs WHERE id=$1`)).
		WithArgs("job-9").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-9", "publish", `{}`, "failed", 3, 3, now, "boom", `{"success":false}`, nil, now, now, now))

	job, err := NewJobRepository(db).Get(context.Background(), "job-9")
	require.NoError(t, err)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, "boom", *job.LastError)
	require.NotNil(t, job.FinishedAt)
	require.JSONEq(t, `{"success":false}`, string(job.Result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM publish_jobs WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = NewJobRepository(db).Get(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestJobRepository_Stats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM publish_jobs GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("waiting", 4).AddRow("completed", 10).AddRow("failed", 2))

	stats, err := NewJobRepository(db).Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.JobStats{Waiting: 4, Completed: 10, Failed: 2}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ResetOnlyFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id=$3 AND status='failed'`)).
		WithArgs(now, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewJobRepository(db).Reset(context.Background(), "job-1", now)
	require.ErrorIs(t, err, model.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryMSSQL_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	key := "sweep:youtube:2025-01-02"
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dbo.[publish_jobs]`)).
		WillReturnError(mssql.Error{Number: 2601, Message: "Cannot insert duplicate key row"})

	created, err := NewJobRepositoryMSSQL(db).Create(context.Background(), newTestJob(now, &key))
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_TouchActiveJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE publish_jobs SET updated_at=$1 WHERE id=$2 AND status='active'`)).
		WithArgs(now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE dbo.[publish_jobs] SET updated_at=@p1 WHERE id=@p2 AND status='active'`)).
		WithArgs(now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewJobRepository(db).Touch(context.Background(), "job-1", now))
	require.NoError(t, NewJobRepositoryMSSQL(db).Touch(context.Background(), "job-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
