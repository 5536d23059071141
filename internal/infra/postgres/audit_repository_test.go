package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/pagination"
)

func newMockRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAuditRepository(Wrap(db)), mock
}

func TestAuditRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	rec, err := audit.NewRecord(audit.ActionJobPaused, audit.ResourceTypeJob, "job-1", audit.ResultSuccess, now)
	require.NoError(t, err)
	rec.WithActor("alice", "collector", "").WithOutcome(200, "Job paused")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WithArgs(
			rec.ID.String(),
			"alice",
			"collector",
			nil, // actor_ip
			"job.paused",
			"job",
			"job-1",
			"success",
			"low",
			200,
			"Job paused",
			nil, // request_id
			now,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_CreateError(t *testing.T) {
	repo, mock := newMockRepo(t)
	rec, err := audit.NewRecord(audit.ActionJobDeleted, audit.ResourceTypeJob, "job-1", audit.ResultSuccess, time.Now())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_records").WillReturnError(errors.New("connection reset"))

	err = repo.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create audit record")
}

func TestAuditRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "actor", "actor_role", "actor_ip", "action", "resource_type", "resource_id",
		"result", "severity", "status", "message", "request_id", "logged_at",
	}).AddRow(
		"5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01", "alice", "administrator", nil, "schedule.deleted", "scheduled_job",
		"0b8e3b70-8d5e-4c8e-9f3f-7f0c7f3e2f11", "success", "high", 200, nil, "req-9", now,
	)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_records WHERE actor = $1 AND resource_type = $2 ORDER BY logged_at DESC LIMIT 10 OFFSET 0")).
		WithArgs("alice", "scheduled_job").
		WillReturnRows(rows)

	res, err := repo.List(context.Background(),
		audit.Filter{Actor: "alice", ResourceType: audit.ResourceTypeSchedule},
		pagination.New(0, 10))
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	got := res.Data[0]
	assert.Equal(t, "5f1c2a8e-0d7b-4c55-9f0a-6f2b4f1f9a01", got.ID.String())
	assert.Equal(t, audit.ActionScheduleDeleted, got.Action)
	assert.Equal(t, audit.SeverityHigh, got.Severity)
	assert.Empty(t, got.ActorIP)
	assert.Empty(t, got.Message)
	assert.Equal(t, "req-9", got.RequestID)
	assert.Equal(t, now, got.Timestamp)
	assert.False(t, res.HasMore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListRejectsInvalidFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.List(context.Background(), audit.Filter{ResourceType: "tenant"}, pagination.New(0, 10))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_DeleteOlderThan(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_records WHERE logged_at < $1 AND severity NOT IN ('high', 'critical')")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Wrap(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
