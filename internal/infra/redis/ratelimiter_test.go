package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/logger"
)

// scriptStore answers EvalSha with a canned reply and records the call.
type scriptStore struct {
	redis.Scripter

	reply []any
	err   error

	keys []string
	args []any
}

func (s *scriptStore) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	s.keys = keys
	s.args = args
	cmd := redis.NewCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	cmd.SetVal(s.reply)
	return cmd
}

var limiterNow = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, store *scriptStore) *RateLimiter {
	t.Helper()
	rl, err := newRateLimiter(store, "commands", 30, time.Minute, clock.NewMock(limiterNow), logger.NewNop())
	require.NoError(t, err)
	return rl
}

func TestNewRateLimiter_Validation(t *testing.T) {
	store := &scriptStore{}
	log := logger.NewNop()
	clk := clock.Real()

	_, err := NewRateLimiter(nil, "commands", 1, time.Minute, log)
	assert.Error(t, err)

	tests := []struct {
		name   string
		prefix string
		limit  int
		window time.Duration
	}{
		{"empty prefix", "", 1, time.Minute},
		{"zero limit", "commands", 0, time.Minute},
		{"negative window", "commands", 1, -time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRateLimiter(store, tt.prefix, tt.limit, tt.window, clk, log)
			assert.Error(t, err)
		})
	}
}

func TestRateLimiter_AllowPassesWindowArguments(t *testing.T) {
	resetMs := limiterNow.Add(time.Minute).UnixMilli()
	store := &scriptStore{reply: []any{int64(1), int64(29), resetMs}}
	rl := newTestLimiter(t, store)

	res, err := rl.Allow(context.Background(), "user:alice")
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Equal(t, 29, res.Remaining)
	assert.Equal(t, resetMs, res.ResetAt.UnixMilli())
	assert.True(t, res.RetryAt.IsZero())

	assert.Equal(t, []string{"ratelimit:commands:user:alice"}, store.keys)
	require.Len(t, store.args, 5)
	assert.Equal(t, limiterNow.UnixMilli(), store.args[0])
	assert.Equal(t, limiterNow.Add(-time.Minute).UnixMilli(), store.args[1])
	assert.Equal(t, int64(60000), store.args[2])
	assert.Equal(t, 30, store.args[3])
}

func TestRateLimiter_AllowDenied(t *testing.T) {
	retry := limiterNow.Add(20 * time.Second).UnixMilli()
	store := &scriptStore{reply: []any{int64(0), int64(0), retry}}
	rl := newTestLimiter(t, store)

	res, err := rl.Allow(context.Background(), "user:alice")
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, retry, res.RetryAt.UnixMilli())
}

func TestRateLimiter_Errors(t *testing.T) {
	t.Run("empty key", func(t *testing.T) {
		rl := newTestLimiter(t, &scriptStore{})
		_, err := rl.Allow(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		rl := newTestLimiter(t, &scriptStore{err: errors.New("connection refused")})
		_, err := rl.Allow(context.Background(), "user:alice")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("malformed reply", func(t *testing.T) {
		rl := newTestLimiter(t, &scriptStore{reply: []any{int64(1), "x", int64(0)}})
		_, err := rl.Status(context.Background(), "user:alice")
		assert.Error(t, err)
	})
}

func TestRateLimiter_StatusDoesNotSendMember(t *testing.T) {
	store := &scriptStore{reply: []any{int64(1), int64(30), limiterNow.UnixMilli()}}
	rl := newTestLimiter(t, store)

	res, err := rl.Status(context.Background(), "user:alice")
	require.NoError(t, err)
	assert.Equal(t, 30, res.Remaining)
	assert.Len(t, store.args, 4)
	assert.Equal(t, 30, rl.Limit())
	assert.Equal(t, time.Minute, rl.Window())
}
