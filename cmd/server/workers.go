package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leakwatch/gateway/internal/config"
	"github.com/leakwatch/gateway/internal/infra/controller"
	"github.com/leakwatch/gateway/internal/infra/jobs"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Workers holds the background loops.
type Workers struct {
	auditWorker *jobs.Worker
	controllers *controller.Manager
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewWorkers builds the audit consumer and the reconcile controllers.
func NewWorkers(cfg *config.Config, infra *Infrastructure, log *logger.Logger) (*Workers, error) {
	w := &Workers{
		controllers: controller.NewManager(&controller.ManagerConfig{
			Metrics: controller.NewPrometheusMetrics(prometheus.DefaultRegisterer),
			Logger:  log,
		}),
	}

	w.controllers.Register(controller.NewAuthorityHealthController(infra.Authority, &controller.AuthorityHealthControllerConfig{
		Interval: cfg.Authority.HealthInterval,
		Logger:   log,
	}))

	if infra.AuditRepo != nil {
		w.controllers.Register(controller.NewAuditRetentionController(infra.AuditRepo, &controller.AuditRetentionControllerConfig{
			Interval:  cfg.Audit.RetentionInterval,
			Retention: cfg.Audit.Retention,
			Clock:     clock.Real(),
			Logger:    log,
		}))
	}

	if infra.AuditQueue != nil {
		worker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Audit.Concurrency,
			Queue:         cfg.Audit.Queue,
		}, infra.AuditRepo, log)
		if err != nil {
			return nil, err
		}
		w.auditWorker = worker
	}
	return w, nil
}

// Start launches every worker.
func (w *Workers) Start(ctx context.Context, log *logger.Logger) error {
	if err := w.controllers.Start(ctx); err != nil {
		return err
	}
	log.Info("controllers started", "controllers", w.controllers.ControllerNames())

	if w.auditWorker == nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		if err := w.auditWorker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()
	log.Info("audit worker started")
	return nil
}

// Stop stops every worker and waits for them.
func (w *Workers) Stop(log *logger.Logger) {
	if w.cancel != nil {
		w.cancel()
		<-w.done
		log.Info("audit worker stopped")
	}
	w.controllers.Stop()
	log.Info("controllers stopped")
}
