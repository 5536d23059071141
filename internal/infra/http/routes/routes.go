// Package routes registers all HTTP routes for the gateway.
package routes

import (
	"github.com/leakwatch/gateway/internal/config"
	infrahttp "github.com/leakwatch/gateway/internal/infra/http"
	"github.com/leakwatch/gateway/internal/infra/http/handler"
	"github.com/leakwatch/gateway/internal/infra/http/middleware"
	"github.com/leakwatch/gateway/internal/infra/websocket"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// APIPrefix is where the gateway surface is mounted.
const APIPrefix = "/api/v1"

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Job       *handler.JobHandler
	Schedule  *handler.ScheduleHandler
	Audit     *handler.AuditHandler // nil when auditing is disabled
	WebSocket *websocket.Handler
}

// Options carries what route registration needs besides handlers.
type Options struct {
	// CommandLimiter bounds mutations per operator. Nil disables the limit.
	CommandLimiter middleware.DistributedLimiter
}

// Register registers all application routes.
//
// Routes are organized across files by area:
//   - jobs.go: scan jobs and their event stream
//   - scheduler.go: scheduled jobs, history, phases
//   - misc.go: health, metrics, audit, websocket
func Register(router Router, h Handlers, cfg *config.Config, log *logger.Logger, opts Options) {
	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Logger: log,
	})

	commands := []Middleware{
		middleware.RequireCommandRole(),
		middleware.CommandRateLimit(middleware.CommandRateLimitConfig{
			Limiter: opts.CommandLimiter,
			Logger:  log,
		}),
	}

	registerHealthRoutes(router, h.Health)

	router.Group(APIPrefix, func(r Router) {
		registerJobRoutes(r, h.Job, commands)
		registerSchedulerRoutes(r, h.Schedule, commands)
		if h.Audit != nil {
			registerAuditRoutes(r, h.Audit)
		}
		if h.WebSocket != nil {
			registerWebSocketRoutes(r, h.WebSocket)
		}
	}, authMiddleware)
}
