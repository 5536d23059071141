package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authority metrics
var (
	// AuthorityRequestsTotal counts upstream calls by operation and outcome
	// (ok, rejected, unavailable).
	AuthorityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_requests_total",
			Help: "Total number of requests sent to the authority",
		},
		[]string{"operation", "outcome"},
	)

	// AuthorityRequestDuration tracks upstream latency.
	AuthorityRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authority_request_duration_seconds",
			Help:    "Authority request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// AuthorityUp is 1 when the last health probe succeeded.
	AuthorityUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authority_up",
			Help: "Whether the authority answered the last health probe",
		},
	)
)

// Command metrics
var (
	// CommandsTotal counts forwarded mutations by command and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_plane_commands_total",
			Help: "Total number of control-plane commands forwarded",
		},
		[]string{"command", "outcome"},
	)
)

// Bridge metrics
var (
	// SubscriptionsActive tracks open poll loops by kind (job, phases).
	SubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_subscriptions_active",
			Help: "Number of active polling subscriptions",
		},
		[]string{"kind"},
	)

	// BridgeTicksTotal counts poll ticks by kind and result (snapshot, error).
	BridgeTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ticks_total",
			Help: "Total number of poll ticks by result",
		},
		[]string{"kind", "result"},
	)
)

// Audit metrics
var (
	// AuditRecordsTotal counts audit records by stage (enqueued, stored, failed).
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records by stage",
		},
		[]string{"stage"},
	)

	// AuditRecordsPurged counts records removed by retention.
	AuditRecordsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_records_purged_total",
			Help: "Total number of audit records removed by retention",
		},
	)
)

// Rate limit metrics
var (
	// RateLimitDecisionsTotal counts distributed limiter decisions by scope
	// and decision (allowed, denied, error).
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of distributed rate limit decisions",
		},
		[]string{"scope", "decision"},
	)
)
