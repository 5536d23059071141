package app

import (
	"context"
	"errors"
	"time"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

// EventKind distinguishes stream events.
type EventKind string

const (
	EventSnapshot EventKind = "snapshot"
	EventError    EventKind = "error"
)

// JobEvent is one observation of a job. A failed tick carries Error and
// Status instead of a snapshot.
type JobEvent struct {
	Kind   EventKind        `json:"-"`
	Job    *scanjob.ScanJob `json:"job,omitempty"`
	Error  string           `json:"error,omitempty"`
	Status int              `json:"status,omitempty"`
	At     time.Time        `json:"-"`
}

// Payload returns the value published for the event: the job itself for a
// snapshot, {error, status} otherwise.
func (e JobEvent) Payload() any {
	if e.Kind == EventSnapshot {
		return e.Job
	}
	return struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{e.Error, e.Status}
}

// JobSink receives events in order. Returning an error ends the stream.
type JobSink func(ctx context.Context, e JobEvent) error

// JobStreamConfig configures the per-subscription poller.
type JobStreamConfig struct {
	// Interval between polls (default: 1 second)
	Interval time.Duration
	// TickTimeout bounds a single poll (default: 900ms)
	TickTimeout time.Duration
}

// JobStream turns periodic reads of one job into a stream of events.
type JobStream struct {
	reader JobReader
	cfg    JobStreamConfig
	clock  clock.Clock
	logger *logger.Logger
}

// NewJobStream creates a new JobStream.
func NewJobStream(r JobReader, cfg JobStreamConfig, clk clock.Clock, log *logger.Logger) *JobStream {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.TickTimeout <= 0 || cfg.TickTimeout > cfg.Interval {
		cfg.TickTimeout = cfg.Interval * 9 / 10
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &JobStream{
		reader: r,
		cfg:    cfg,
		clock:  clk,
		logger: log.With("component", "job_stream"),
	}
}

// Run polls jobID until ctx is done or sink fails. A failed poll publishes an
// error event and the stream continues with the next tick. When
// closeOnTerminal is set the stream ends after the first terminal snapshot.
// The first poll happens immediately.
func (s *JobStream) Run(ctx context.Context, jobID string, closeOnTerminal bool, sink JobSink) error {
	metrics.SubscriptionsActive.WithLabelValues("job").Inc()
	defer metrics.SubscriptionsActive.WithLabelValues("job").Dec()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log := s.logger.With("job_id", jobID)
	log.Debug("job stream started")
	defer log.Debug("job stream stopped")

	for {
		ev := s.poll(ctx, jobID)
		if ctx.Err() != nil {
			return nil
		}
		if err := sink(ctx, ev); err != nil {
			return err
		}
		if closeOnTerminal && ev.Kind == EventSnapshot && ev.Job.Status.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *JobStream) poll(ctx context.Context, jobID string) JobEvent {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	job, err := s.reader.GetJob(tctx, jobID)
	now := s.clock.Now()
	if err != nil {
		metrics.BridgeTicksTotal.WithLabelValues("job", "error").Inc()
		return errorEvent(err, now)
	}
	metrics.BridgeTicksTotal.WithLabelValues("job", "snapshot").Inc()
	return JobEvent{Kind: EventSnapshot, Job: job, At: now}
}

func errorEvent(err error, now time.Time) JobEvent {
	ev := JobEvent{Kind: EventError, Status: authority.StatusOf(err), At: now}
	var up *authority.UpstreamError
	switch {
	case errors.As(err, &up):
		ev.Error = up.Message
	case errors.Is(err, context.DeadlineExceeded):
		ev.Error = "Authority did not answer in time"
	default:
		ev.Error = "Authority temporarily unavailable"
	}
	return ev
}
