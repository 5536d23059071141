package controller

import (
	"context"
	"time"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
)

// AuditRetentionControllerConfig configures the AuditRetentionController.
type AuditRetentionControllerConfig struct {
	// Interval is how often to run the retention check.
	// Default: 1 hour.
	Interval time.Duration

	// Retention is how long to keep audit records.
	// Default: 90 days.
	Retention time.Duration

	// Clock (optional)
	Clock clock.Clock

	// Logger for logging.
	Logger *logger.Logger
}

// AuditRetentionController deletes audit records older than the retention
// window. Deleted records cannot be recovered.
type AuditRetentionController struct {
	repo   audit.Repository
	config *AuditRetentionControllerConfig
	logger *logger.Logger
}

// NewAuditRetentionController creates a new AuditRetentionController.
func NewAuditRetentionController(repo audit.Repository, config *AuditRetentionControllerConfig) *AuditRetentionController {
	if config == nil {
		config = &AuditRetentionControllerConfig{}
	}
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 90 * 24 * time.Hour
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	return &AuditRetentionController{
		repo:   repo,
		config: config,
		logger: config.Logger,
	}
}

// Name returns the controller name.
func (c *AuditRetentionController) Name() string {
	return "audit-retention"
}

// Interval returns the reconciliation interval.
func (c *AuditRetentionController) Interval() time.Duration {
	return c.config.Interval
}

// Reconcile deletes audit records older than the retention period.
func (c *AuditRetentionController) Reconcile(ctx context.Context) (int, error) {
	cutoff := c.config.Clock.Now().Add(-c.config.Retention)

	deleted, err := c.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.AuditRecordsPurged.Add(float64(deleted))
		c.logger.Info("purged audit records",
			"count", deleted,
			"cutoff_time", cutoff,
			"retention", c.config.Retention.String(),
		)
	}
	return int(deleted), nil
}
