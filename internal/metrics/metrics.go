// Package metrics exposes prometheus instrumentation for optimizer runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "crotosolve_"

// Run outcomes used as the outcome label.
const (
	OutcomeConverged = "converged"
	OutcomeBudget    = "budget_exhausted"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var costEvaluations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "cost_evaluations_total",
		Help: "Number of cost-function evaluations spent by optimizers",
	},
	[]string{"optimizer"},
)

var runsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "runs_total",
		Help: "Number of finished optimizer runs by outcome",
	},
	[]string{"optimizer", "outcome"},
)

var runDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    prefix + "run_duration_seconds",
		Help:    "Wall-clock duration of optimizer runs",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	},
	[]string{"optimizer"},
)

var finalCost = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: prefix + "final_cost",
		Help: "Final cost of the most recent run per optimizer",
	},
	[]string{"optimizer"},
)

// RecordRun records a finished run.
func RecordRun(optimizer string, evaluations int, cost float64, converged bool, elapsed time.Duration) {
	outcome := OutcomeBudget
	if converged {
		outcome = OutcomeConverged
	}
	costEvaluations.WithLabelValues(optimizer).Add(float64(evaluations))
	runsTotal.WithLabelValues(optimizer, outcome).Inc()
	runDuration.WithLabelValues(optimizer).Observe(elapsed.Seconds())
	finalCost.WithLabelValues(optimizer).Set(cost)
}

// RecordFailure records a run that ended with an error or was cancelled.
func RecordFailure(optimizer, outcome string) {
	runsTotal.WithLabelValues(optimizer, outcome).Inc()
}
