// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Task types
const (
	TypeAuditRecord = "audit:record"
)

// DefaultAuditQueue is used when no queue is configured.
const DefaultAuditQueue = "audit"

// NewAuditRecordTask creates a task persisting r. The record ID doubles as the
// task ID so a record is enqueued at most once.
func NewAuditRecordTask(r *audit.Record, queue string) (*asynq.Task, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if queue == "" {
		queue = DefaultAuditQueue
	}
	return asynq.NewTask(
		TypeAuditRecord,
		data,
		asynq.TaskID(r.ID.String()),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Second),
		asynq.Retention(time.Hour),
		asynq.Queue(queue),
	), nil
}

// AuditTaskHandler persists audit records.
type AuditTaskHandler struct {
	repo   audit.Repository
	logger *logger.Logger
}

// NewAuditTaskHandler creates a new AuditTaskHandler.
func NewAuditTaskHandler(repo audit.Repository, log *logger.Logger) *AuditTaskHandler {
	return &AuditTaskHandler{
		repo:   repo,
		logger: log.With("handler", "audit_tasks"),
	}
}

// RegisterHandlers registers the audit handlers with mux.
func (h *AuditTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAuditRecord, h.HandleAuditRecord)
}

// HandleAuditRecord stores one record. Malformed payloads are not retried.
func (h *AuditTaskHandler) HandleAuditRecord(ctx context.Context, t *asynq.Task) error {
	var r audit.Record
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to unmarshal audit record: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.repo.Create(ctx, &r); err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("failed").Inc()
		h.logger.Error("failed to persist audit record",
			"record_id", r.ID.String(),
			"action", r.Action.String(),
			"error", err,
		)
		return fmt.Errorf("failed to persist audit record: %w", err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("stored").Inc()
	h.logger.Debug("audit record stored",
		"record_id", r.ID.String(),
		"action", r.Action.String(),
		"actor", r.Actor,
	)
	return nil
}
