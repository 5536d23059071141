package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/pagination"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{ID: "t-1", Queue: "audit"}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type memRepo struct {
	mu      sync.Mutex
	records []*audit.Record
	err     error
}

func (m *memRepo) Create(_ context.Context, r *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memRepo) List(context.Context, audit.Filter, pagination.Window) (pagination.Result[*audit.Record], error) {
	return pagination.Result[*audit.Record]{}, nil
}

func (m *memRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func newRecord(t *testing.T) *audit.Record {
	t.Helper()
	r, err := audit.NewRecord(audit.ActionJobCancelled, audit.ResourceTypeJob, "job-1", audit.ResultSuccess, time.Now())
	require.NoError(t, err)
	return r.WithActor("alice", "collector", "10.0.0.1")
}

func TestClient_Enqueue(t *testing.T) {
	fake := &fakeEnqueuer{}
	c := newClient(fake, "", logger.NewNop())
	rec := newRecord(t)

	require.NoError(t, c.Enqueue(context.Background(), rec))
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, TypeAuditRecord, fake.tasks[0].Type())

	var got audit.Record
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "alice", got.Actor)
}

func TestClient_EnqueueConflictIsNotAnError(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, "audit", logger.NewNop())
	assert.NoError(t, c.Enqueue(context.Background(), newRecord(t)))
}

func TestClient_EnqueueFailure(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: errors.New("redis down")}, "audit", logger.NewNop())
	assert.Error(t, c.Enqueue(context.Background(), newRecord(t)))
}

func TestAuditTaskHandler(t *testing.T) {
	repo := &memRepo{}
	h := NewAuditTaskHandler(repo, logger.NewNop())
	rec := newRecord(t)

	task, err := NewAuditRecordTask(rec, "")
	require.NoError(t, err)
	require.NoError(t, h.HandleAuditRecord(context.Background(), task))
	require.Len(t, repo.records, 1)
	assert.Equal(t, rec.ID, repo.records[0].ID)
	assert.Equal(t, audit.ActionJobCancelled, repo.records[0].Action)
}

func TestAuditTaskHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	h := NewAuditTaskHandler(&memRepo{}, logger.NewNop())

	err := h.HandleAuditRecord(context.Background(), asynq.NewTask(TypeAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditTaskHandler_RepositoryFailureRetries(t *testing.T) {
	h := NewAuditTaskHandler(&memRepo{err: errors.New("db down")}, logger.NewNop())
	task, err := NewAuditRecordTask(newRecord(t), "audit")
	require.NoError(t, err)

	err = h.HandleAuditRecord(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
