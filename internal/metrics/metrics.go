// Package metrics holds the prometheus collectors shared by the pipeline,
// the ledger, the re-auditor and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadgate"

var (
	// CandidatesTotal counts finished pipeline runs by outcome.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_total",
			Help:      "Candidates processed, by terminal status.",
		},
		[]string{"status"}, // accepted, rejected_invalid, rejected_duplicate, failed
	)

	PhoneSeverityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phone_severity_total",
			Help:      "Phone pattern verdicts, by severity.",
		},
		[]string{"severity"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of one candidate's pipeline run.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	LedgerMovementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_total",
			Help:      "Ledger entries written, by movement type.",
		},
		[]string{"movement_type"},
	)

	LedgerCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Credits moved, by movement type.",
		},
		[]string{"movement_type"},
	)

	InsufficientCreditTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "insufficient_credit_total",
			Help:      "Consume attempts refused for lack of balance.",
		},
	)

	DNSLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dns",
			Name:      "lookups_total",
			Help:      "MX lookups, by result.",
		},
		[]string{"result"}, // confirmed, no_mx, timeout, error, circuit_open
	)

	// BreakerState is a circuit breaker's state: 0 closed, 1 open, 2 half-open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dns",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"breaker"},
	)

	BlacklistLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist",
			Name:      "lookups_total",
			Help:      "Blacklist lookups, by where the answer came from.",
		},
		[]string{"result"}, // cache_hit, store_hit, miss
	)

	ReauditLeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaudit",
			Name:      "leads_total",
			Help:      "Leads visited by the re-auditor, by result.",
		},
		[]string{"result"}, // unchanged, invalidated, refunded, failed
	)

	DLQEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dlq_enqueued_total",
			Help:      "Candidates sent to the dead letter queue.",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
