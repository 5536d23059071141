package app_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/infra/authority/authoritytest"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

var testNow = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	records []*audit.Record
	err     error
}

func (s *recordingSink) Enqueue(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) Records() []*audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Record(nil), s.records...)
}

type fixture struct {
	fake   *authoritytest.Server
	client *authority.Client
	sink   *recordingSink
	clock  *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock(testNow)
	fake := authoritytest.New(t, clk)
	return &fixture{
		fake:   fake,
		client: authority.New(authority.Config{BaseURL: fake.URL, Timeout: 2 * time.Second}, logger.NewNop()),
		sink:   &recordingSink{},
		clock:  clk,
	}
}

func (f *fixture) jobs() *app.JobService {
	return app.NewJobService(f.client, f.sink, f.clock, logger.NewNop())
}

func operatorCtx() context.Context {
	ctx := authority.WithToken(context.Background(), "operator-token")
	return app.WithActor(ctx, app.Actor{Username: "alice", Role: "collector", IP: "10.0.0.1", RequestID: "req-1"})
}

func TestJobService_List(t *testing.T) {
	f := newFixture(t)
	for i, st := range []scanjob.Status{scanjob.StatusCompleted, scanjob.StatusCollecting, scanjob.StatusCompleted} {
		f.fake.AddJob(scanjob.ScanJob{
			ID:        string(rune('a' + i)),
			Status:    st,
			RawStatus: string(st),
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		})
	}

	res, err := f.jobs().List(operatorCtx(), app.ListJobsInput{Status: "Completed", Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "c", res.Data[0].ID)
	assert.True(t, res.HasMore)

	res, err = f.jobs().List(operatorCtx(), app.ListJobsInput{})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Limit)
	assert.Len(t, res.Data, 3)
}

func TestJobService_CancelCompletedIsRejected(t *testing.T) {
	f := newFixture(t)
	f.fake.AddJob(scanjob.ScanJob{ID: "job-1", Status: scanjob.StatusCompleted})

	_, err := f.jobs().Cancel(operatorCtx(), "job-1")

	var up *authority.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusConflict, up.Status)

	got, _ := f.fake.Job("job-1")
	assert.Equal(t, scanjob.StatusCompleted, got.Status)
	assert.Empty(t, f.sink.Records(), "rejected commands are not audited")
}

func TestJobService_PauseOnlyFromCollecting(t *testing.T) {
	tests := []struct {
		status  scanjob.Status
		wantErr string
	}{
		{status: scanjob.StatusCollecting},
		{status: scanjob.StatusQueued, wantErr: "Job in non-pausable phase: queued"},
		{status: scanjob.StatusParsing, wantErr: "Job in non-pausable phase: parsing"},
		{status: scanjob.StatusPaused, wantErr: "Job already paused"},
		{status: scanjob.StatusCancelling, wantErr: "Cannot pause job in status: cancelling"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			f.fake.AddJob(scanjob.ScanJob{ID: "job-1", Status: tt.status})

			res, err := f.jobs().Pause(operatorCtx(), "job-1")
			got, _ := f.fake.Job("job-1")
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Job paused", res.Message)
				assert.Equal(t, scanjob.StatusPaused, got.Status)
				return
			}
			var up *authority.UpstreamError
			require.ErrorAs(t, err, &up)
			assert.Equal(t, tt.wantErr, up.Message)
			assert.Equal(t, tt.status, got.Status)
		})
	}
}

func TestJobService_ResumeOnlyFromPaused(t *testing.T) {
	f := newFixture(t)
	f.fake.AddJob(scanjob.ScanJob{ID: "paused", Status: scanjob.StatusPaused})
	f.fake.AddJob(scanjob.ScanJob{ID: "queued", Status: scanjob.StatusQueued})
	svc := f.jobs()

	_, err := svc.Resume(operatorCtx(), "paused")
	require.NoError(t, err)
	got, _ := f.fake.Job("paused")
	assert.Equal(t, scanjob.StatusCollecting, got.Status)

	_, err = svc.Resume(operatorCtx(), "queued")
	var up *authority.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "Job is not paused (current status: queued)", up.Message)
}

func TestJobService_AuditsAcceptedCommands(t *testing.T) {
	f := newFixture(t)
	f.fake.AddJob(scanjob.ScanJob{ID: "job-1", Status: scanjob.StatusQueued})
	f.fake.AddJob(scanjob.ScanJob{ID: "job-2", Status: scanjob.StatusFailed})
	svc := f.jobs()

	_, err := svc.Cancel(operatorCtx(), "job-1")
	require.NoError(t, err)
	_, err = svc.Delete(operatorCtx(), "job-2")
	require.NoError(t, err)

	recs := f.sink.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, audit.ActionJobCancelled, recs[0].Action)
	assert.Equal(t, "job-1", recs[0].ResourceID)
	assert.Equal(t, "alice", recs[0].Actor)
	assert.Equal(t, "collector", recs[0].ActorRole)
	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, "Job cancelled", recs[0].Message)
	assert.Equal(t, testNow, recs[0].Timestamp)
	assert.Equal(t, audit.ActionJobDeleted, recs[1].Action)
	assert.Equal(t, audit.SeverityHigh, recs[1].Severity)

	assert.Equal(t, []string{"operator-token", "operator-token"}, f.fake.Tokens())
}

func TestJobService_AuditFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("queue down")
	f.fake.AddJob(scanjob.ScanJob{ID: "job-1", Status: scanjob.StatusCollecting})

	res, err := f.jobs().Cancel(operatorCtx(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelling", res.Status)
}

func TestJobService_ClearAll(t *testing.T) {
	f := newFixture(t)
	f.fake.AddJob(scanjob.ScanJob{ID: "a", Status: scanjob.StatusCollecting})
	f.fake.AddJob(scanjob.ScanJob{ID: "b", Status: scanjob.StatusCompleted})

	res, err := f.jobs().ClearAll(operatorCtx())
	require.NoError(t, err)
	require.NotNil(t, res.DeletedCount)
	assert.Equal(t, 2, *res.DeletedCount)

	_, ok := f.fake.Job("a")
	assert.False(t, ok)
}
