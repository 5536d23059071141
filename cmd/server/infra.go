package main

import (
	"context"
	"fmt"
	"time"

	"github.com/leakwatch/gateway/internal/config"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/infra/jobs"
	"github.com/leakwatch/gateway/internal/infra/postgres"
	"github.com/leakwatch/gateway/internal/infra/redis"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Infrastructure holds the external connections. Everything except the
// authority is optional and nil when disabled.
type Infrastructure struct {
	Authority *authority.Client

	DB        *postgres.DB
	AuditRepo *postgres.AuditRepository

	Redis          *redis.Client
	CommandLimiter *redis.RateLimiter
	AuditQueue     *jobs.Client
}

// NewInfrastructure connects to every enabled backend.
func NewInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{
		Authority: authority.New(authority.Config{
			BaseURL:    cfg.Authority.BaseURL,
			Timeout:    cfg.Authority.RequestTimeout,
			HealthPath: cfg.Authority.HealthPath,
		}, log),
	}

	if cfg.Database.Enabled {
		db, err := postgres.New(&cfg.Database)
		if err != nil {
			infra.Close(log)
			return nil, fmt.Errorf("connect database: %w", err)
		}
		infra.DB = db
		if err := db.Migrate(ctx); err != nil {
			infra.Close(log)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		infra.AuditRepo = postgres.NewAuditRepository(db)
		log.Info("database connected")
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(&cfg.Redis, log)
		if err != nil {
			infra.Close(log)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = client
		log.Info("redis connected")

		if cfg.RateLimit.CommandsPerMinute > 0 {
			limiter, err := redis.NewRateLimiter(client, "commands", cfg.RateLimit.CommandsPerMinute, time.Minute, log)
			if err != nil {
				infra.Close(log)
				return nil, fmt.Errorf("command limiter: %w", err)
			}
			infra.CommandLimiter = limiter
		}

		if cfg.Audit.Enabled && infra.AuditRepo != nil {
			queue, err := jobs.NewClient(jobs.ClientConfig{
				RedisAddr:     cfg.Redis.Addr(),
				RedisPassword: cfg.Redis.Password,
				RedisDB:       cfg.Redis.DB,
				Queue:         cfg.Audit.Queue,
			}, log)
			if err != nil {
				infra.Close(log)
				return nil, fmt.Errorf("audit queue: %w", err)
			}
			infra.AuditQueue = queue
		}
	}

	if cfg.Audit.Enabled && infra.AuditQueue == nil {
		log.Warn("audit enabled but database or redis is disabled, commands will not be recorded")
	}
	return infra, nil
}

// Close releases every open connection.
func (i *Infrastructure) Close(log *logger.Logger) {
	if i.AuditQueue != nil {
		closeWithLog(i.AuditQueue, "audit queue", log)
	}
	if i.Redis != nil {
		closeWithLog(i.Redis, "redis", log)
	}
	if i.DB != nil {
		closeWithLog(i.DB, "database", log)
	}
}
