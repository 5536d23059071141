package app

import (
	"context"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
)

// JobReader reads job snapshots from the authority.
type JobReader interface {
	ListJobs(ctx context.Context, f authority.JobFilter) ([]scanjob.ScanJob, error)
	GetJob(ctx context.Context, id string) (*scanjob.ScanJob, error)
}

// JobAuthority is the authority's job surface.
type JobAuthority interface {
	JobReader
	CancelJob(ctx context.Context, id string) (*authority.CommandResult, error)
	PauseJob(ctx context.Context, id string) (*authority.CommandResult, error)
	ResumeJob(ctx context.Context, id string) (*authority.CommandResult, error)
	DeleteJob(ctx context.Context, id string) (*authority.CommandResult, error)
	ClearJobs(ctx context.Context) (*authority.CommandResult, error)
}

// ScheduleReader reads definitions and their history from the authority.
type ScheduleReader interface {
	ListSchedules(ctx context.Context) ([]scheduledjob.ScheduledJob, error)
	ScheduleHistory(ctx context.Context, id string) (*scheduledjob.History, error)
}

// ScheduleAuthority is the authority's scheduler surface.
type ScheduleAuthority interface {
	ScheduleReader
	CreateSchedule(ctx context.Context, req scheduledjob.Request) (*scheduledjob.ScheduledJob, error)
	UpdateSchedule(ctx context.Context, id string, req scheduledjob.Request) (*scheduledjob.ScheduledJob, error)
	DeleteSchedule(ctx context.Context, id string) (*authority.CommandResult, error)
	RunScheduleNow(ctx context.Context, id string) (*authority.CommandResult, error)
	PauseSchedule(ctx context.Context, id string) (*scheduledjob.ScheduledJob, error)
	ResumeSchedule(ctx context.Context, id string) (*scheduledjob.ScheduledJob, error)
	ScheduleNextRun(ctx context.Context, id string) (*authority.NextRunInfo, error)
}

// AuditSink accepts records of accepted commands.
type AuditSink interface {
	Enqueue(ctx context.Context, r *audit.Record) error
}

type actorKey struct{}

// Actor is the authenticated caller issuing a command.
type Actor struct {
	Username  string
	Role      string
	IP        string
	RequestID string
}

// WithActor attaches the caller to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the caller set by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
