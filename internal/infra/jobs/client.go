package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client enqueuer
	queue  string
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	return newClient(asynq.NewClient(redisOpt), cfg.Queue, log), nil
}

func newClient(e enqueuer, queue string, log *logger.Logger) *Client {
	if queue == "" {
		queue = DefaultAuditQueue
	}
	return &Client{
		client: e,
		queue:  queue,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueue queues an audit record for persistence. A record that is already
// queued is not an error.
func (c *Client) Enqueue(ctx context.Context, r *audit.Record) error {
	task, err := NewAuditRecordTask(r, c.queue)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		c.logger.Error("failed to enqueue audit record",
			"record_id", r.ID.String(),
			"action", r.Action.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("audit record queued",
		"task_id", info.ID,
		"action", r.Action.String(),
		"queue", info.Queue,
	)
	return nil
}
