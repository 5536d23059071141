// Package controller runs periodic reconciliation loops in the background.
//
// Each controller owns one concern and runs in its own goroutine:
//   - AuthorityHealthController probes the authority and publishes authority_up
//   - AuditRetentionController purges audit records past the retention window
//
// Controllers are independent; a failing reconcile is logged and retried on
// the next tick.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leakwatch/gateway/pkg/logger"
)

// ErrAlreadyRunning is returned by Start on a running manager.
var ErrAlreadyRunning = errors.New("controller manager already running")

// Controller is one reconciliation loop.
type Controller interface {
	// Name returns the unique name of this controller.
	Name() string

	// Interval returns how often this controller should run.
	Interval() time.Duration

	// Reconcile performs one pass. It must be idempotent.
	// Returns the number of items processed.
	Reconcile(ctx context.Context) (int, error)
}

// Metrics defines the interface for controller metrics collection.
type Metrics interface {
	RecordReconcile(controller string, itemsProcessed int, duration time.Duration, err error)
	SetControllerRunning(controller string, running bool)
	SetLastReconcileTime(controller string, t time.Time)
}

// Manager runs registered controllers in parallel goroutines.
type Manager struct {
	controllers []Controller
	metrics     Metrics
	logger      *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerConfig configures the controller manager.
type ManagerConfig struct {
	// Metrics collector (optional)
	Metrics Metrics

	// Logger (optional)
	Logger *logger.Logger
}

// NewManager creates a new controller manager.
func NewManager(cfg *ManagerConfig) *Manager {
	m := &Manager{logger: logger.NewNop()}
	if cfg != nil {
		m.metrics = cfg.Metrics
		if cfg.Logger != nil {
			m.logger = cfg.Logger
		}
	}
	if m.metrics == nil {
		m.metrics = NoopMetrics{}
	}
	return m
}

// Register adds a controller. It panics if the manager is running.
func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		panic("cannot register controllers while manager is running")
	}

	m.controllers = append(m.controllers, c)
	m.logger.Info("controller registered",
		"name", c.Name(),
		"interval", c.Interval().String(),
	)
}

// Start launches every registered controller. They stop when ctx is done or
// Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.logger.Info("starting controller manager", "controller_count", len(m.controllers))

	for _, c := range m.controllers {
		m.wg.Add(1)
		go m.runController(ctx, c)
	}
	return nil
}

// Stop cancels all controllers and waits for them to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("controller manager stopped")
}

func (m *Manager) runController(ctx context.Context, c Controller) {
	defer m.wg.Done()

	name := c.Name()
	m.metrics.SetControllerRunning(name, true)
	defer m.metrics.SetControllerRunning(name, false)

	// Run immediately on start
	m.reconcileOnce(ctx, c)

	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("controller stopping", "name", name)
			return
		case <-ticker.C:
			m.reconcileOnce(ctx, c)
		}
	}
}

func (m *Manager) reconcileOnce(ctx context.Context, c Controller) {
	name := c.Name()
	start := time.Now()

	reconcileCtx, cancel := context.WithTimeout(ctx, c.Interval())
	defer cancel()

	count, err := c.Reconcile(reconcileCtx)
	duration := time.Since(start)
	m.metrics.RecordReconcile(name, count, duration, err)
	m.metrics.SetLastReconcileTime(name, time.Now())

	switch {
	case err != nil && ctx.Err() == nil:
		m.logger.Error("controller reconcile failed", "name", name, "duration", duration, "error", err)
	case count > 0:
		m.logger.Info("controller reconcile completed", "name", name, "items_processed", count, "duration", duration)
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ControllerNames returns the names of all registered controllers.
func (m *Manager) ControllerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.controllers))
	for i, c := range m.controllers {
		names[i] = c.Name()
	}
	return names
}
