package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

// PhaseEvent is one phase tick: the phase map on success, {error, status}
// when the schedule list could not be read.
type PhaseEvent struct {
	Kind   EventKind
	Phases map[string]scanjob.Status
	Error  string
	Status int
}

// Name is the event name published to subscribers.
func (e PhaseEvent) Name() string {
	if e.Kind == EventSnapshot {
		return "phases"
	}
	return string(e.Kind)
}

// Payload returns the phase map for a snapshot, {error, status} otherwise.
func (e PhaseEvent) Payload() any {
	if e.Kind == EventSnapshot {
		return e.Phases
	}
	return struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{e.Error, e.Status}
}

// PhaseSink receives one event per tick. Returning an error ends the stream.
type PhaseSink func(ctx context.Context, e PhaseEvent) error

// PhasePollerConfig configures the phase poller.
type PhasePollerConfig struct {
	// Interval between ticks (default: 15 seconds)
	Interval time.Duration
	// RequestTimeout bounds each authority request of a tick (default: 900ms)
	RequestTimeout time.Duration
}

// PhasePoller tracks the latest run status of every active definition.
type PhasePoller struct {
	reader ScheduleReader
	cfg    PhasePollerConfig
	logger *logger.Logger
}

// NewPhasePoller creates a new PhasePoller.
func NewPhasePoller(r ScheduleReader, cfg PhasePollerConfig, log *logger.Logger) *PhasePoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 900 * time.Millisecond
	}
	if cfg.RequestTimeout > cfg.Interval {
		cfg.RequestTimeout = cfg.Interval
	}
	return &PhasePoller{
		reader: r,
		cfg:    cfg,
		logger: log.With("component", "phase_poller"),
	}
}

// Tick lists the definitions and fetches the history of each active one
// concurrently. Every request gets its own timeout. A definition whose
// history cannot be read, or that has never fired, is left out of the result.
func (p *PhasePoller) Tick(ctx context.Context) (map[string]scanjob.Status, error) {
	lctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	jobs, err := p.reader.ListSchedules(lctx)
	cancel()
	if err != nil {
		metrics.BridgeTicksTotal.WithLabelValues("phases", "error").Inc()
		return nil, err
	}

	phases := p.Collect(ctx, jobs)
	metrics.BridgeTicksTotal.WithLabelValues("phases", "snapshot").Inc()
	return phases, nil
}

// Collect fetches the latest run status of each active definition in jobs.
func (p *PhasePoller) Collect(ctx context.Context, jobs []scheduledjob.ScheduledJob) map[string]scanjob.Status {
	var (
		mu     sync.Mutex
		phases = make(map[string]scanjob.Status)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		if !j.IsActive {
			continue
		}
		id := j.ID
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, p.cfg.RequestTimeout)
			defer cancel()
			h, err := p.reader.ScheduleHistory(hctx, id)
			if err != nil {
				p.logger.Debug("phase lookup failed", "scheduled_job_id", id, "error", err)
				return nil
			}
			phase, ok := scheduledjob.LatestPhase(h.Entries())
			if !ok {
				return nil
			}
			mu.Lock()
			phases[id] = phase
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return phases
}

// Run ticks immediately and then every interval until ctx is done or sink
// fails. A failed tick publishes an error event and the stream stays open.
func (p *PhasePoller) Run(ctx context.Context, sink PhaseSink) error {
	metrics.SubscriptionsActive.WithLabelValues("phases").Inc()
	defer metrics.SubscriptionsActive.WithLabelValues("phases").Dec()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		phases, err := p.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		ev := PhaseEvent{Kind: EventSnapshot, Phases: phases}
		if err != nil {
			p.logger.Warn("phase tick failed", "error", err)
			je := errorEvent(err, time.Time{})
			ev = PhaseEvent{Kind: EventError, Error: je.Error, Status: je.Status}
		}
		if err := sink(ctx, ev); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
