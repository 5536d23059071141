package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/logger"
)

var (
	// allowScript checks and consumes one slot atomically.
	allowScript = redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local window_ms = tonumber(ARGV[3])
		local limit = tonumber(ARGV[4])
		local request_id = ARGV[5]

		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		local count = redis.call('ZCARD', key)

		if count < limit then
			redis.call('ZADD', key, now, request_id)
			redis.call('PEXPIRE', key, window_ms)
			return {1, limit - count - 1, now + window_ms}
		else
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			local retry_at = oldest[2] and (tonumber(oldest[2]) + window_ms) or (now + window_ms)
			return {0, 0, retry_at}
		end
	`)

	// statusScript reads the window without consuming a slot.
	statusScript = redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local window_ms = tonumber(ARGV[3])
		local limit = tonumber(ARGV[4])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		local count = redis.call('ZCARD', key)

		local ttl = redis.call('PTTL', key)
		if ttl < 0 then
			ttl = window_ms
		end

		local remaining = limit - count
		if remaining < 0 then
			remaining = 0
		end

		local allowed = 0
		if count < limit then
			allowed = 1
		end

		return {allowed, remaining, now + ttl}
	`)
)

// RateLimiter is a sliding-window log limiter on Redis sorted sets. Every
// gateway replica shares the same window, so an operator's command budget
// holds across the fleet.
type RateLimiter struct {
	store     redis.Scripter
	keyPrefix string
	limit     int
	window    time.Duration
	clock     clock.Clock
	logger    *logger.Logger
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// RetryAt is only set when the request was denied.
	RetryAt time.Time
}

// NewRateLimiter creates a distributed limiter allowing limit requests per
// window for each key under prefix.
//
//	rl, err := redis.NewRateLimiter(client, "commands", 30, time.Minute, log)
func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration, log *logger.Logger) (*RateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newRateLimiter(client.client, prefix, limit, window, clock.Real(), log)
}

func newRateLimiter(store redis.Scripter, prefix string, limit int, window time.Duration, clk clock.Clock, log *logger.Logger) (*RateLimiter, error) {
	if store == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	return &RateLimiter{
		store:     store,
		keyPrefix: prefix,
		limit:     limit,
		window:    window,
		clock:     clk,
		logger:    log,
	}, nil
}

func (rl *RateLimiter) buildKey(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", rl.keyPrefix, key)
}

// Allow checks if a request is allowed and consumes one slot atomically.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	now := rl.clock.Now()
	result, err := rl.run(ctx, allowScript, key, now, uuid.NewString())
	if err != nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(rl.keyPrefix, "error").Inc()
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	if result.Allowed {
		metrics.RateLimitDecisionsTotal.WithLabelValues(rl.keyPrefix, "allowed").Inc()
		return result, nil
	}

	metrics.RateLimitDecisionsTotal.WithLabelValues(rl.keyPrefix, "denied").Inc()
	result.RetryAt = result.ResetAt
	rl.logger.Debug("rate limit exceeded",
		"key", key,
		"retry_at", result.RetryAt,
	)
	return result, nil
}

// Status returns the current window without consuming a slot.
func (rl *RateLimiter) Status(ctx context.Context, key string) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	result, err := rl.run(ctx, statusScript, key, rl.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("rate limit status: %w", err)
	}
	return result, nil
}

func (rl *RateLimiter) run(ctx context.Context, script *redis.Script, key string, now time.Time, extra ...any) (*RateLimitResult, error) {
	args := []any{
		now.UnixMilli(),
		now.Add(-rl.window).UnixMilli(),
		rl.window.Milliseconds(),
		rl.limit,
	}
	args = append(args, extra...)

	reply, err := script.Run(ctx, rl.store, []string{rl.buildKey(key)}, args...).Slice()
	if err != nil {
		return nil, err
	}
	return parseReply(reply)
}

func parseReply(reply []any) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("unexpected limiter reply of length %d", len(reply))
	}
	nums := make([]int64, len(reply))
	for i, v := range reply {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected limiter reply element %T", v)
		}
		nums[i] = n
	}
	return &RateLimitResult{
		Allowed:   nums[0] == 1,
		Remaining: int(nums[1]),
		ResetAt:   time.UnixMilli(nums[2]),
	}, nil
}

// Limit returns the configured maximum requests per window.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Window returns the configured window.
func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}
