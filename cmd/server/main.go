package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/leakwatch/gateway/internal/config"
	"github.com/leakwatch/gateway/internal/infra/http"
	"github.com/leakwatch/gateway/internal/infra/http/routes"
	"github.com/leakwatch/gateway/pkg/logger"
)

// @title           Leakwatch Gateway API
// @version         1.0
// @description     Control plane for credential-leak collection jobs and their schedules

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

// Command line flags.
var (
	showRoutes  = flag.Bool("routes", false, "Print all registered routes and exit")
	routeFormat = flag.String("route-format", "table", "Route output format: table, json")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	infra, err := NewInfrastructure(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		return 1
	}
	defer infra.Close(log)

	// ==========================================================================
	// Services & Handlers
	// ==========================================================================
	services := NewServices(cfg, infra, log)
	handlers := NewHandlers(cfg, infra, services, log)

	server := http.NewServer(cfg, log)
	opts := routes.Options{}
	if infra.CommandLimiter != nil {
		opts.CommandLimiter = infra.CommandLimiter
	}
	routes.Register(server.Router(), handlers, cfg, log, opts)

	if *showRoutes {
		if err := http.PrintRoutes(os.Stdout, http.CollectRoutes(server.Router()), *routeFormat); err != nil {
			log.Error("failed to print routes", "error", err)
			return 1
		}
		return 0
	}

	// ==========================================================================
	// WebSocket Hub
	// ==========================================================================
	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()

	go services.Hub.Run(wsCtx)
	log.Info("websocket hub started")

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(cfg, infra, log)
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}
	if err := workers.Start(ctx, log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr(), "authority", cfg.Authority.BaseURL)

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closing the hub ends every subscription loop.
	wsCancel()
	log.Info("websocket hub stopped")

	workers.Stop(log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	lc := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	}
	if cfg.Log.SamplingEnabled {
		sampling := logger.DefaultSamplingConfig()
		sampling.Tick = time.Minute
		if cfg.Log.SamplingThreshold > 0 {
			//nolint:gosec // G115: validated positive above
			sampling.Threshold = uint64(cfg.Log.SamplingThreshold)
		}
		if cfg.Log.SamplingEvery > 0 {
			//nolint:gosec // G115: validated positive above
			sampling.Every = uint64(cfg.Log.SamplingEvery)
		}
		lc.Sampling = sampling
	}
	log := logger.New(lc)
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
