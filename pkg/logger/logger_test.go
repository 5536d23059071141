package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("job decorated",
		"authorization", "Bearer abc.def.ghi",
		"jwt_secret", "s3cr3t",
		"last_credentials", 12,
		"job_id", "7f1c",
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["authorization"])
	assert.Equal(t, "[REDACTED]", lines[0]["jwt_secret"])
	assert.Equal(t, float64(12), lines[0]["last_credentials"])
	assert.Equal(t, "7f1c", lines[0]["job_id"])
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyUserID, "operator-7")
	log.WithContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "operator-7", lines[0]["user_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	l := NewNop()
	assert.Same(t, l, FromContext(ToContext(context.Background(), l)))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestSamplingThrottlesRepeats(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
		Sampling: SamplingConfig{
			Enabled:     true,
			Tick:        time.Hour,
			Threshold:   2,
			Every:       3,
			NeverSample: []string{"audit:"},
		},
	})

	for range 8 {
		log.Warn("stream tick failed")
	}
	for range 4 {
		log.Info("audit: job cancelled")
	}

	var ticks, audits int
	for _, l := range decodeLines(t, &buf) {
		switch l["msg"] {
		case "stream tick failed":
			ticks++
		case "audit: job cancelled":
			audits++
		}
	}
	// 2 under threshold, then records 5 and 8.
	assert.Equal(t, 4, ticks)
	assert.Equal(t, 4, audits)
}

func TestSamplingWindowResets(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	h := NewSamplingHandler(base, SamplingConfig{Enabled: true, Tick: time.Minute, Threshold: 1, Every: 100}).(*samplingHandler)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	assert.True(t, h.admit("k"))
	assert.False(t, h.admit("k"))
	now = now.Add(2 * time.Minute)
	assert.True(t, h.admit("k"))
}

func TestSamplingDisabledReturnsHandler(t *testing.T) {
	base := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	assert.Same(t, base, NewSamplingHandler(base, SamplingConfig{}))
}
