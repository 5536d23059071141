package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/domain/shared"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Schedule lookup errors, worded as the authority words them.
var (
	ErrInvalidScheduleID = shared.NewDomainError("INVALID_ID", "Invalid job_id", shared.ErrInvalidInput)
	ErrScheduleNotFound  = shared.NewDomainError("NOT_FOUND", "Scheduled job not found", shared.ErrNotFound)
)

// ScheduleService forwards scheduler reads and commands to the authority and
// decorates definitions with next-run predictions and run statistics.
type ScheduleService struct {
	authority ScheduleAuthority
	phases    *PhasePoller
	clock     clock.Clock
	recorder  commandRecorder
	logger    *logger.Logger
}

// NewScheduleService creates a new ScheduleService. sink may be nil.
func NewScheduleService(a ScheduleAuthority, phases *PhasePoller, sink AuditSink, clk clock.Clock, log *logger.Logger) *ScheduleService {
	if clk == nil {
		clk = clock.Real()
	}
	log = log.With("service", "schedule")
	return &ScheduleService{
		authority: a,
		phases:    phases,
		clock:     clk,
		recorder:  commandRecorder{audit: sink, clock: clk, logger: log},
		logger:    log,
	}
}

// NextRunView combines the authority's next-run diagnostic with the local prediction.
type NextRunView struct {
	authority.NextRunInfo
	IsActive         bool                `json:"is_active"`
	Predictable      bool                `json:"predictable"`
	PredictedNextRun *string             `json:"predicted_next_run"`
	Source           scheduledjob.Source `json:"source,omitempty"`
}

// List returns every definition, decorated. withPhases adds the latest run
// status of each active definition, at the cost of one history request each.
func (s *ScheduleService) List(ctx context.Context, withPhases bool) ([]scheduledjob.View, error) {
	jobs, err := s.authority.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	var phases map[string]scanjob.Status
	if withPhases && s.phases != nil {
		phases = s.phases.Collect(ctx, jobs)
	}
	now := s.clock.Now()
	out := make([]scheduledjob.View, 0, len(jobs))
	for i := range jobs {
		v := scheduledjob.NewView(&jobs[i], now)
		if phase, ok := phases[jobs[i].ID]; ok {
			v = v.WithPhase(phase)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one decorated definition with its current phase when active.
// A failed phase lookup leaves the phase empty.
func (s *ScheduleService) Get(ctx context.Context, id string) (*scheduledjob.View, error) {
	j, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	v := scheduledjob.NewView(j, s.clock.Now())
	if s.phases != nil {
		if phase, ok := s.phases.Collect(ctx, []scheduledjob.ScheduledJob{*j})[j.ID]; ok {
			v = v.WithPhase(phase)
		}
	}
	return &v, nil
}

// Create forwards a new definition. Aliases and defaults are resolved before
// forwarding.
func (s *ScheduleService) Create(ctx context.Context, req scheduledjob.Request) (*scheduledjob.View, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	j, err := s.authority.CreateSchedule(ctx, req)
	id := ""
	if j != nil {
		id = j.ID
	}
	s.recorder.observe(ctx, audit.ActionScheduleCreated, audit.ResourceTypeSchedule, id, req.Name, err)
	if err != nil {
		return nil, err
	}
	return s.view(j), nil
}

// Update replaces a definition's editable fields.
func (s *ScheduleService) Update(ctx context.Context, id string, req scheduledjob.Request) (*scheduledjob.View, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	j, err := s.authority.UpdateSchedule(ctx, id, req)
	s.recorder.observe(ctx, audit.ActionScheduleUpdated, audit.ResourceTypeSchedule, id, req.Name, err)
	if err != nil {
		return nil, err
	}
	return s.view(j), nil
}

// Delete removes a definition.
func (s *ScheduleService) Delete(ctx context.Context, id string) (*authority.CommandResult, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	res, err := s.authority.DeleteSchedule(ctx, id)
	s.recorder.observe(ctx, audit.ActionScheduleDeleted, audit.ResourceTypeSchedule, id, resultMessage(res), err)
	return res, err
}

// RunNow queues an immediate firing.
func (s *ScheduleService) RunNow(ctx context.Context, id string) (*authority.CommandResult, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	res, err := s.authority.RunScheduleNow(ctx, id)
	s.recorder.observe(ctx, audit.ActionScheduleFired, audit.ResourceTypeSchedule, id, resultMessage(res), err)
	return res, err
}

// Pause deactivates a definition.
func (s *ScheduleService) Pause(ctx context.Context, id string) (*scheduledjob.View, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	j, err := s.authority.PauseSchedule(ctx, id)
	s.recorder.observe(ctx, audit.ActionSchedulePaused, audit.ResourceTypeSchedule, id, "", err)
	if err != nil {
		return nil, err
	}
	return s.view(j), nil
}

// Resume reactivates a definition.
func (s *ScheduleService) Resume(ctx context.Context, id string) (*scheduledjob.View, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	j, err := s.authority.ResumeSchedule(ctx, id)
	s.recorder.observe(ctx, audit.ActionScheduleResumed, audit.ResourceTypeSchedule, id, "", err)
	if err != nil {
		return nil, err
	}
	return s.view(j), nil
}

// History returns the most recent firings with a rollup of that window.
func (s *ScheduleService) History(ctx context.Context, id string) (*scheduledjob.HistoryView, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	h, err := s.authority.ScheduleHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	v := scheduledjob.NewHistoryView(*h)
	return &v, nil
}

// NextRun returns the authority's next-run diagnostic alongside the local
// prediction for the same definition.
func (s *ScheduleService) NextRun(ctx context.Context, id string) (*NextRunView, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}

	var (
		info *authority.NextRunInfo
		job  *scheduledjob.ScheduledJob
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.authority.ScheduleNextRun(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		job, err = s.find(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	next, src := scheduledjob.PredictNextRun(job, s.clock.Now())
	out := &NextRunView{
		NextRunInfo: *info,
		IsActive:    job.IsActive,
		Predictable: scheduledjob.IsPredictable(job.Schedule),
		Source:      src,
	}
	if next != nil {
		ts := clock.FormatTimestamp(*next)
		out.PredictedNextRun = &ts
	}
	return out, nil
}

// Phases returns the latest run status of every active definition.
func (s *ScheduleService) Phases(ctx context.Context) (map[string]scanjob.Status, error) {
	return s.phases.Tick(ctx)
}

func (s *ScheduleService) find(ctx context.Context, id string) (*scheduledjob.ScheduledJob, error) {
	if err := validateScheduleID(id); err != nil {
		return nil, err
	}
	jobs, err := s.authority.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			return &jobs[i], nil
		}
	}
	return nil, fmt.Errorf("schedule %s: %w", id, ErrScheduleNotFound)
}

func (s *ScheduleService) view(j *scheduledjob.ScheduledJob) *scheduledjob.View {
	v := scheduledjob.NewView(j, s.clock.Now())
	return &v
}

func validateScheduleID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidScheduleID
	}
	return nil
}
