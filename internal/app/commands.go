package app

import (
	"context"
	"errors"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
)

// commandRecorder counts forwarded commands and audits the accepted ones.
type commandRecorder struct {
	audit  AuditSink
	clock  clock.Clock
	logger *logger.Logger
}

func (c commandRecorder) observe(ctx context.Context, action audit.Action, rt audit.ResourceType, id string, msg string, err error) {
	switch {
	case err == nil:
		metrics.CommandsTotal.WithLabelValues(action.String(), "accepted").Inc()
	case errors.Is(err, authority.ErrUnavailable):
		metrics.CommandsTotal.WithLabelValues(action.String(), "unavailable").Inc()
		return
	default:
		metrics.CommandsTotal.WithLabelValues(action.String(), "rejected").Inc()
		c.logger.Info("command rejected",
			"action", action.String(),
			"resource_id", id,
			"status", authority.StatusOf(err),
			"error", err,
		)
		return
	}

	if c.audit == nil {
		return
	}
	rec, rErr := audit.NewRecord(action, rt, id, audit.ResultSuccess, c.clock.Now())
	if rErr != nil {
		c.logger.Error("failed to build audit record", "error", rErr)
		return
	}
	rec.WithOutcome(200, msg)
	if a, ok := ActorFromContext(ctx); ok {
		rec.WithActor(a.Username, a.Role, a.IP).WithRequestID(a.RequestID)
	}
	// The authority has already applied the command; an audit failure is logged only.
	if qErr := c.audit.Enqueue(context.WithoutCancel(ctx), rec); qErr != nil {
		metrics.AuditRecordsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("failed to enqueue audit record",
			"action", action.String(),
			"resource_id", id,
			"error", qErr,
		)
		return
	}
	metrics.AuditRecordsTotal.WithLabelValues("enqueued").Inc()
}

func resultMessage(r *authority.CommandResult) string {
	if r == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Status
}
