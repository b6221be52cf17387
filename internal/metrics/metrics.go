// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusops"

var (
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Attendance tokens minted.",
	})

	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_code_collisions_total",
		Help:      "Generated codes rejected because they were already issued.",
	})

	TokensDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_deactivated_total",
		Help:      "Tokens flipped to inactive after expiry.",
	})

	RenewalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renewal_occurrences_total",
		Help:      "Occurrences visited by renewal passes, by cadence and outcome.",
	}, []string{"cadence", "outcome"})

	ScanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Token scans by outcome.",
	}, []string{"outcome"})

	StoreTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_timeouts_total",
		Help:      "Store calls that hit their bounded timeout.",
	}, []string{"op"})

	DerivedWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "derived_writes_total",
		Help:      "Payment and borrowing writes by derived status.",
	}, []string{"kind", "status"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_runs_total",
		Help:      "Scheduled task executions by task and result.",
	}, []string{"task", "result"})
)
