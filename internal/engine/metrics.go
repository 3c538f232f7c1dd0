package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/roach88/degraphmalizer/internal/engine")

var (
	actionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "degraphmalizer_actions_submitted_total",
		Help: "Total number of submitted degraphmalize requests",
	}, []string{"type", "scope"})

	actionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "degraphmalizer_actions_resolved_total",
		Help: "Total number of resolved actions by outcome",
	}, []string{"outcome"})

	actionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "degraphmalizer_action_duration_seconds",
		Help:    "Time from submission to resolution of an action",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	actionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "degraphmalizer_actions_in_flight",
		Help: "Number of actions currently building or evaluating trees",
	})

	nodesRecomputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "degraphmalizer_nodes_recomputed_total",
		Help: "Total number of recomputed tree nodes",
	}, []string{"operation", "outcome"})

	retriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degraphmalizer_retries_scheduled_total",
		Help: "Number of actions re-enqueued because a store was unavailable",
	})

	retriesCollapsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degraphmalizer_retries_collapsed_total",
		Help: "Number of actions collapsed into a pending retry of the same request",
	})

	backpressureRedirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degraphmalizer_backpressure_redirects_total",
		Help: "Number of actions deferred to the delay queue because the engine was saturated",
	})

	delayQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "degraphmalizer_delay_queue_length",
		Help: "Number of actions waiting in the delay queue",
	})
)
