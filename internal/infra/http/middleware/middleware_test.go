package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	redisinfra "github.com/leakwatch/gateway/internal/infra/redis"
	"github.com/leakwatch/gateway/pkg/jwt"
	"github.com/leakwatch/gateway/pkg/logger"
)

const testSecret = "test-secret-with-enough-length-000"

func mustToken(t *testing.T, username, role string, expiry time.Duration) string {
	t.Helper()
	tok, err := jwt.GenerateToken(username, role, testSecret, expiry)
	require.NoError(t, err)
	return tok
}

func authChain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	chain := append([]func(http.Handler) http.Handler{RequestID(), Auth(AuthConfig{Secret: testSecret, Logger: logger.NewNop()})}, mws...)
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func TestAuth(t *testing.T) {
	var seen struct {
		actor app.Actor
		token string
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.actor, _ = app.ActorFromContext(r.Context())
		seen.token = authority.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := authChain(ok)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing bearer token")
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, "alice", jwt.RoleCollector, -time.Minute))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "expired")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
		req.Header.Set("Authorization", "Basic YWxpY2U6cHc=")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		tok := mustToken(t, "alice", jwt.RoleCollector, time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.RemoteAddr = "10.0.0.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "alice", seen.actor.Username)
		assert.Equal(t, jwt.RoleCollector, seen.actor.Role)
		assert.Equal(t, "10.0.0.7", seen.actor.IP)
		assert.NotEmpty(t, seen.actor.RequestID)
		assert.Equal(t, tok, seen.token)
	})

	t.Run("query token only on streams", func(t *testing.T) {
		tok := mustToken(t, "alice", jwt.RoleUser, time.Hour)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j1/stream?access_token="+tok, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?access_token="+tok, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireCommandRole(t *testing.T) {
	h := authChain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequireCommandRole())

	tests := []struct {
		role string
		want int
	}{
		{jwt.RoleAdministrator, http.StatusOK},
		{jwt.RoleCollector, http.StatusOK},
		{jwt.RoleUser, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run("role "+tt.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/j1/cancel", nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, "bob", tt.role, time.Hour))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

type stubLimiter struct {
	result *redisinfra.RateLimitResult
	err    error
	keys   []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*redisinfra.RateLimitResult, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func (s *stubLimiter) Limit() int { return 30 }

func TestCommandRateLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	tok := mustToken(t, "alice", jwt.RoleAdministrator, time.Hour)
	send := func(l DistributedLimiter) *httptest.ResponseRecorder {
		h := authChain(next, CommandRateLimit(CommandRateLimitConfig{Limiter: l, Logger: logger.NewNop()}))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/j1/pause", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed", func(t *testing.T) {
		l := &stubLimiter{result: &redisinfra.RateLimitResult{Allowed: true, Remaining: 29, ResetAt: time.Now().Add(time.Minute)}}
		rec := send(l)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "29", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"user:alice"}, l.keys)
	})

	t.Run("denied", func(t *testing.T) {
		retry := time.Now().Add(10 * time.Second)
		l := &stubLimiter{result: &redisinfra.RateLimitResult{ResetAt: retry, RetryAt: retry}}
		rec := send(l)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("limiter outage fails open", func(t *testing.T) {
		rec := send(&stubLimiter{err: errors.New("redis down")})
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestDecompress(t *testing.T) {
	payload := []byte(`{"name":"Daily Banking Scan","keywords":["bank.co.id"],"schedule":"0 6 * * *"}`)
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		_, _ = io.Copy(w, r.Body)
	})
	h := Decompress(DecompressConfig{})(echo)

	t.Run("zstd", func(t *testing.T) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		body := enc.EncodeAll(payload, nil)
		require.NoError(t, enc.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/jobs", bytes.NewReader(body))
		req.Header.Set("Content-Encoding", "zstd")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, string(payload), rec.Body.String())
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, _ = gw.Write(payload)
		require.NoError(t, gw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/jobs", &buf)
		req.Header.Set("Content-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, string(payload), rec.Body.String())
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/jobs", strings.NewReader("x"))
		req.Header.Set("Content-Encoding", "br")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("corrupt body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/jobs", strings.NewReader("not zstd"))
		req.Header.Set("Content-Encoding", "zstd")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		}
	})
	h := Timeout(20 * time.Millisecond)(slow)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j1/stream", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeout_PassesFastResponse(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Job", "j1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/jobs", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "j1", rec.Header().Get("X-Job"))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRequestID_ReusesHeader(t *testing.T) {
	var got string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", got)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	h := RecoveryWithConfig(logger.NewNop(), true)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
