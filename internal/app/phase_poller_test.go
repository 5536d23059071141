package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

type stubSchedules struct {
	jobs      []scheduledjob.ScheduledJob
	listErr   error
	listDelay time.Duration
	histDelay time.Duration
	history  map[string]*scheduledjob.History
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (s *stubSchedules) ListSchedules(ctx context.Context) ([]scheduledjob.ScheduledJob, error) {
	if err := wait(ctx, s.listDelay); err != nil {
		return nil, err
	}
	return s.jobs, s.listErr
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *stubSchedules) ScheduleHistory(ctx context.Context, id string) (*scheduledjob.History, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	d := s.histDelay
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	if err := wait(ctx, d); err != nil {
		return nil, err
	}

	h, ok := s.history[id]
	if !ok {
		return nil, &authority.UpstreamError{Operation: "schedule_history", Status: 404, Message: "Scheduled job not found"}
	}
	return h, nil
}

func run(id string, status scanjob.Status, at time.Time) scanjob.ScanJob {
	return scanjob.ScanJob{ID: id, Status: status, CreatedAt: at}
}

func TestPhasePoller_Tick(t *testing.T) {
	base := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	stub := &stubSchedules{
		jobs: []scheduledjob.ScheduledJob{
			{ID: "a", IsActive: true},
			{ID: "b", IsActive: true},
			{ID: "c", IsActive: false},
			{ID: "d", IsActive: true},
			{ID: "e", IsActive: true},
		},
		history: map[string]*scheduledjob.History{
			"a": {ScheduledJobID: "a", History: []scanjob.ScanJob{
				run("a1", scanjob.StatusCompleted, base),
				run("a2", scanjob.StatusCollecting, base.Add(time.Hour)),
			}},
			"b": {ScheduledJobID: "b", History: []scanjob.ScanJob{
				run("b1", scanjob.ParseStatus("running"), base),
			}},
			"c": {ScheduledJobID: "c", History: []scanjob.ScanJob{run("c1", scanjob.StatusFailed, base)}},
			"e": {ScheduledJobID: "e"},
		},
	}

	p := app.NewPhasePoller(stub, app.PhasePollerConfig{Interval: time.Second}, logger.NewNop())
	phases, err := p.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]scanjob.Status{
		"a": scanjob.StatusCollecting,
		"b": scanjob.StatusCollecting,
	}, phases)
	assert.Equal(t, int32(4), stub.calls.Load(), "one history request per active schedule")
	assert.Greater(t, stub.peak.Load(), int32(1), "history requests run concurrently")
}

func TestPhasePoller_TickTimesEachRequest(t *testing.T) {
	stub := &stubSchedules{
		jobs:      []scheduledjob.ScheduledJob{{ID: "a", IsActive: true}, {ID: "b", IsActive: true}},
		listDelay: 70 * time.Millisecond,
		histDelay: 70 * time.Millisecond,
		history: map[string]*scheduledjob.History{
			"a": {ScheduledJobID: "a", History: []scanjob.ScanJob{run("a1", scanjob.StatusCollecting, time.Now())}},
			"b": {ScheduledJobID: "b", History: []scanjob.ScanJob{run("b1", scanjob.StatusParsing, time.Now())}},
		},
	}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{
		Interval:       time.Second,
		RequestTimeout: 100 * time.Millisecond,
	}, logger.NewNop())

	phases, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]scanjob.Status{
		"a": scanjob.StatusCollecting,
		"b": scanjob.StatusParsing,
	}, phases, "a slow list call does not eat into the history budget")
}

func TestPhasePoller_TickListTimeout(t *testing.T) {
	stub := &stubSchedules{listDelay: time.Second}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{
		Interval:       time.Second,
		RequestTimeout: 20 * time.Millisecond,
	}, logger.NewNop())

	_, err := p.Tick(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPhasePoller_TickListFailure(t *testing.T) {
	stub := &stubSchedules{listErr: errors.New("boom")}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{}, logger.NewNop())

	_, err := p.Tick(context.Background())
	assert.Error(t, err)
}

func TestPhasePoller_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := &stubSchedules{
		jobs: []scheduledjob.ScheduledJob{{ID: "a", IsActive: true}},
		history: map[string]*scheduledjob.History{
			"a": {ScheduledJobID: "a", History: []scanjob.ScanJob{run("a1", scanjob.StatusParsing, time.Now())}},
		},
	}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{Interval: 20 * time.Millisecond}, logger.NewNop())

	var ticks int
	err := p.Run(context.Background(), func(_ context.Context, ev app.PhaseEvent) error {
		ticks++
		assert.Equal(t, "phases", ev.Name())
		assert.Equal(t, scanjob.StatusParsing, ev.Phases["a"])
		if ticks == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, 2, ticks)
}

func TestPhasePoller_RunReportsFailedTicks(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := &stubSchedules{listErr: &authority.UpstreamError{Operation: "list_schedules", Status: 503, Message: "Scheduler offline"}}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{Interval: 5 * time.Millisecond}, logger.NewNop())

	var events []app.PhaseEvent
	err := p.Run(context.Background(), func(_ context.Context, ev app.PhaseEvent) error {
		events = append(events, ev)
		if len(events) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Len(t, events, 2, "the stream stays open after a failed tick")
	for _, ev := range events {
		assert.Equal(t, "error", ev.Name())
		assert.Equal(t, "Scheduler offline", ev.Error)
		assert.Equal(t, 503, ev.Status)
	}
}

func TestPhasePoller_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := &stubSchedules{listDelay: time.Second}
	p := app.NewPhasePoller(stub, app.PhasePollerConfig{Interval: time.Second}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	called := false
	err := p.Run(ctx, func(context.Context, app.PhaseEvent) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called, "nothing is published once the stream is cancelled")
}
