package main

import (
	"github.com/leakwatch/gateway/internal/config"
	"github.com/leakwatch/gateway/internal/infra/http/handler"
	"github.com/leakwatch/gateway/internal/infra/http/routes"
	"github.com/leakwatch/gateway/internal/infra/websocket"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/validator"
)

// NewHandlers creates all HTTP handlers.
func NewHandlers(cfg *config.Config, infra *Infrastructure, svc *Services, log *logger.Logger) routes.Handlers {
	v := validator.New()

	healthOpts := []handler.HealthHandlerOption{
		handler.WithAuthority(handler.PingFunc(infra.Authority.Health)),
	}
	if infra.DB != nil {
		healthOpts = append(healthOpts, handler.WithDatabase(infra.DB))
	}
	if infra.Redis != nil {
		healthOpts = append(healthOpts, handler.WithRedis(infra.Redis))
	}

	h := routes.Handlers{
		Health:    handler.NewHealthHandler(healthOpts...),
		Job:       handler.NewJobHandler(svc.Jobs, svc.JobStream, v, log),
		Schedule:  handler.NewScheduleHandler(svc.Schedules, svc.Phases, v, log),
		WebSocket: websocket.NewHandler(svc.Hub, cfg.CORS.AllowedOrigins, log),
	}
	if infra.AuditRepo != nil {
		h.Audit = handler.NewAuditHandler(infra.AuditRepo, log)
	}
	return h
}
