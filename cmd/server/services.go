package main

import (
	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/config"
	"github.com/leakwatch/gateway/internal/infra/websocket"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Services holds the application services.
type Services struct {
	Jobs      *app.JobService
	Schedules *app.ScheduleService
	JobStream *app.JobStream
	Phases    *app.PhasePoller
	Hub       *websocket.Hub
}

// NewServices builds the services on top of the authority client.
func NewServices(cfg *config.Config, infra *Infrastructure, log *logger.Logger) *Services {
	clk := clock.Real()

	var sink app.AuditSink
	if infra.AuditQueue != nil {
		sink = infra.AuditQueue
	}

	stream := app.NewJobStream(infra.Authority, app.JobStreamConfig{
		Interval:    cfg.Authority.StreamInterval,
		TickTimeout: cfg.Authority.PollTimeout,
	}, clk, log)
	phases := app.NewPhasePoller(infra.Authority, app.PhasePollerConfig{
		Interval:       cfg.Authority.PhaseInterval,
		RequestTimeout: cfg.Authority.PollTimeout,
	}, log)

	hub := websocket.NewHub(websocket.Bridge{Jobs: stream, Phases: phases}, websocket.HubConfig{
		MaxConnsPerUser:         cfg.WebSocket.MaxConnsPerUser,
		MaxSubscriptionsPerConn: cfg.WebSocket.MaxSubscriptionsPerConn,
	}, log)

	return &Services{
		Jobs:      app.NewJobService(infra.Authority, sink, clk, log),
		Schedules: app.NewScheduleService(infra.Authority, phases, sink, clk, log),
		JobStream: stream,
		Phases:    phases,
		Hub:       hub,
	}
}
