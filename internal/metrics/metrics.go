// Package metrics registers the Prometheus metrics used by the rotation
// core on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts individual generation attempts labelled by model,
	// pair slot ("primary", "secondary"), and outcome ("success", "failure",
	// "fatal").
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrotor_attempts_total",
			Help: "Total generation attempts by model, slot, and outcome.",
		},
		[]string{"model", "slot", "outcome"},
	)

	// AttemptDuration observes single-attempt latency in seconds.
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genrotor_attempt_duration_seconds",
			Help:    "Single attempt duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// GenerateDuration observes end-to-end traversal latency labelled by
	// outcome ("success", "exhausted", "fatal").
	GenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genrotor_generate_duration_seconds",
			Help:    "End-to-end generate duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// ExhaustionsTotal counts requests that ran out of credential/model
	// combinations without a single success.
	ExhaustionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genrotor_exhaustions_total",
			Help: "Requests that exhausted every credential/model combination.",
		},
	)
)
