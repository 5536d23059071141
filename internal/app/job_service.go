package app

import (
	"context"
	"strings"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/pagination"
)

// JobService forwards job reads and commands to the authority. It performs no
// state checks of its own; the authority's verdict is returned unchanged.
type JobService struct {
	authority JobAuthority
	recorder  commandRecorder
	logger    *logger.Logger
}

// NewJobService creates a new JobService. sink may be nil.
func NewJobService(a JobAuthority, sink AuditSink, clk clock.Clock, log *logger.Logger) *JobService {
	if clk == nil {
		clk = clock.Real()
	}
	log = log.With("service", "job")
	return &JobService{
		authority: a,
		recorder:  commandRecorder{audit: sink, clock: clk, logger: log},
		logger:    log,
	}
}

// ListJobsInput represents the input for listing jobs.
type ListJobsInput struct {
	Status string `validate:"omitempty,job_status"`
	Skip   int    `validate:"min=0"`
	Limit  int    `validate:"min=0,max=200"`
}

// List returns one page of jobs, newest first.
func (s *JobService) List(ctx context.Context, input ListJobsInput) (pagination.Result[scanjob.ScanJob], error) {
	page := pagination.New(input.Skip, input.Limit)
	jobs, err := s.authority.ListJobs(ctx, authority.JobFilter{
		Status: strings.ToLower(strings.TrimSpace(input.Status)),
		Skip:   page.Offset(),
		Limit:  page.Limit,
	})
	if err != nil {
		return pagination.Result[scanjob.ScanJob]{}, err
	}
	return pagination.NewResult(jobs, page), nil
}

// Get returns one job snapshot.
func (s *JobService) Get(ctx context.Context, id string) (*scanjob.ScanJob, error) {
	return s.authority.GetJob(ctx, id)
}

// Cancel requests cancellation.
func (s *JobService) Cancel(ctx context.Context, id string) (*authority.CommandResult, error) {
	res, err := s.authority.CancelJob(ctx, id)
	s.recorder.observe(ctx, audit.ActionJobCancelled, audit.ResourceTypeJob, id, resultMessage(res), err)
	return res, err
}

// Pause requests a pause.
func (s *JobService) Pause(ctx context.Context, id string) (*authority.CommandResult, error) {
	res, err := s.authority.PauseJob(ctx, id)
	s.recorder.observe(ctx, audit.ActionJobPaused, audit.ResourceTypeJob, id, resultMessage(res), err)
	return res, err
}

// Resume resumes a paused job.
func (s *JobService) Resume(ctx context.Context, id string) (*authority.CommandResult, error) {
	res, err := s.authority.ResumeJob(ctx, id)
	s.recorder.observe(ctx, audit.ActionJobResumed, audit.ResourceTypeJob, id, resultMessage(res), err)
	return res, err
}

// Delete removes a job in any status.
func (s *JobService) Delete(ctx context.Context, id string) (*authority.CommandResult, error) {
	res, err := s.authority.DeleteJob(ctx, id)
	s.recorder.observe(ctx, audit.ActionJobDeleted, audit.ResourceTypeJob, id, resultMessage(res), err)
	return res, err
}

// ClearAll removes every job.
func (s *JobService) ClearAll(ctx context.Context) (*authority.CommandResult, error) {
	res, err := s.authority.ClearJobs(ctx)
	s.recorder.observe(ctx, audit.ActionJobsCleared, audit.ResourceTypeJob, "", resultMessage(res), err)
	return res, err
}
