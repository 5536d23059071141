package controller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leakwatch/gateway/internal/infra/controller"
	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/pagination"
)

type countingController struct {
	name  string
	calls atomic.Int32
}

func (c *countingController) Name() string { return c.name }
func (c *countingController) Interval() time.Duration { return 5 * time.Millisecond }
func (c *countingController) Reconcile(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestManager_RunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := &countingController{name: "a"}
	b := &countingController{name: "b"}
	m := controller.NewManager(&controller.ManagerConfig{Metrics: controller.NewPrometheusMetrics(prometheus.NewRegistry())})
	m.Register(a)
	m.Register(b)
	assert.Equal(t, []string{"a", "b"}, m.ControllerNames())

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), controller.ErrAlreadyRunning)
	assert.Panics(t, func() { m.Register(&countingController{name: "late"}) })

	assert.Eventually(t, func() bool {
		return a.calls.Load() >= 3 && b.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()
}

func TestManager_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := &countingController{name: "ctx"}
	m := controller.NewManager(nil)
	m.Register(c)
	require.NoError(t, m.Start(ctx))

	assert.Eventually(t, func() bool { return c.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	m.Stop()
}

type stubProber struct {
	mu  sync.Mutex
	err error
}

func (p *stubProber) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestAuthorityHealthController(t *testing.T) {
	p := &stubProber{}
	c := controller.NewAuthorityHealthController(p, nil)
	assert.Equal(t, "authority-health", c.Name())
	assert.Equal(t, 30*time.Second, c.Interval())

	_, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthorityUp))

	p.err = errors.New("dial tcp: connection refused")
	_, err = c.Reconcile(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.AuthorityUp))
}

type retentionRepo struct {
	before  time.Time
	deleted int64
	err     error
}

func (r *retentionRepo) Create(context.Context, *audit.Record) error { return nil }

func (r *retentionRepo) List(context.Context, audit.Filter, pagination.Window) (pagination.Result[*audit.Record], error) {
	return pagination.Result[*audit.Record]{}, nil
}

func (r *retentionRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.before = before
	return r.deleted, r.err
}

func TestAuditRetentionController(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &retentionRepo{deleted: 4}
	c := controller.NewAuditRetentionController(repo, &controller.AuditRetentionControllerConfig{
		Retention: 30 * 24 * time.Hour,
		Clock:     clock.NewMock(now),
	})

	purgedBefore := testutil.ToFloat64(metrics.AuditRecordsPurged)
	n, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, now.Add(-30*24*time.Hour), repo.before)
	assert.Equal(t, purgedBefore+4, testutil.ToFloat64(metrics.AuditRecordsPurged))

	repo.err = errors.New("db down")
	_, err = c.Reconcile(context.Background())
	assert.Error(t, err)
}
