package controller

import (
	"context"
	"time"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/logger"
)

// HealthProber checks whether the authority answers.
type HealthProber interface {
	Health(ctx context.Context) error
}

// AuthorityHealthControllerConfig configures the AuthorityHealthController.
type AuthorityHealthControllerConfig struct {
	// Interval between probes.
	// Default: 30 seconds.
	Interval time.Duration

	// Logger for logging.
	Logger *logger.Logger
}

// AuthorityHealthController probes the authority and publishes the result as
// the authority_up gauge. Transitions are logged once.
type AuthorityHealthController struct {
	prober HealthProber
	config *AuthorityHealthControllerConfig
	logger *logger.Logger

	known bool
	up    bool
}

// NewAuthorityHealthController creates a new AuthorityHealthController.
func NewAuthorityHealthController(prober HealthProber, config *AuthorityHealthControllerConfig) *AuthorityHealthController {
	if config == nil {
		config = &AuthorityHealthControllerConfig{}
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	return &AuthorityHealthController{
		prober: prober,
		config: config,
		logger: config.Logger,
	}
}

// Name returns the controller name.
func (c *AuthorityHealthController) Name() string {
	return "authority-health"
}

// Interval returns the reconciliation interval.
func (c *AuthorityHealthController) Interval() time.Duration {
	return c.config.Interval
}

// Reconcile probes the authority once. Reconcile is only ever called from the
// controller's own goroutine.
func (c *AuthorityHealthController) Reconcile(ctx context.Context) (int, error) {
	err := c.prober.Health(ctx)
	up := err == nil

	if up {
		metrics.AuthorityUp.Set(1)
	} else {
		metrics.AuthorityUp.Set(0)
	}

	if !c.known || up != c.up {
		if up {
			c.logger.Info("authority reachable")
		} else {
			c.logger.Warn("authority unreachable", "error", err)
		}
	}
	c.known, c.up = true, up

	return 0, err
}

