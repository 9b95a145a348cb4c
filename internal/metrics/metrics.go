// Package metrics provides Prometheus metrics collection
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Coupon metrics
	CouponsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coupons_redeemed_total",
			Help: "Total number of successful coupon redemptions",
		},
	)

	CouponsExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coupons_exhausted_total",
			Help: "Total number of redemptions rejected because the usage cap was reached",
		},
	)

	// Insurance metrics
	ClaimsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_decided_total",
			Help: "Total number of claim decisions",
		},
		[]string{"decision"},
	)

	ClaimsInsufficientBalance = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claims_insufficient_balance_total",
			Help: "Total number of approvals rejected for insufficient plan balance",
		},
	)

	// Transaction metrics
	TransactionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_transitions_total",
			Help: "Total number of transaction status transitions",
		},
		[]string{"from", "to"},
	)

	TransitionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transaction_transition_rejections_total",
			Help: "Total number of rejected transaction status transitions",
		},
	)

	// Settlement metrics
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Total number of booking charge settlements",
		},
		[]string{"outcome"},
	)

	SettlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Duration of booking charge settlement in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_compensations_total",
			Help: "Total number of saga compensation actions",
		},
		[]string{"step"},
	)

	ConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflict_retries_total",
			Help: "Total number of optimistic concurrency retries",
		},
		[]string{"operation"},
	)

	// Outbox metrics
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Total number of outbox events published to the broker",
		},
		[]string{"status"},
	)

	// Sweep metrics
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of background sweep executions",
		},
		[]string{"sweep"},
	)

	SweptEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swept_entities_total",
			Help: "Total number of entities moved to a terminal state by sweeps",
		},
		[]string{"sweep"},
	)

	// Database metrics
	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation"},
	)
)

// Init initializes metrics (using promauto, metrics are auto-registered)
func Init() {
	// Metrics are automatically registered by promauto
}
