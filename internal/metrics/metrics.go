package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertrules"

var (
	// Ingest metrics
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Total number of event envelopes received",
		},
		[]string{"transport", "status"}, // status: accepted, rejected, failed
	)

	// Fast path metrics
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluation outcomes on the per-event path",
		},
		[]string{"outcome"}, // fire, defer, reject, cooldown, skipped, error, race_lost
	)

	RulesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Rules that won TryFire",
		},
		[]string{"path"}, // fast, delayed
	)

	EvaluateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluate_duration_seconds",
			Help:      "Time spent evaluating one event against its project rules",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Delayed path metrics
	DelayedProjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delayed_projects_total",
			Help:      "Delayed batch runs per project",
		},
		[]string{"status"}, // processed, empty, failed
	)

	DelayedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delayed_entries_total",
			Help:      "Buffered entries drained by the delayed processor",
		},
	)

	DelayedQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delayed_queries_total",
			Help:      "Unique aggregate queries executed",
		},
		[]string{"handler", "status"}, // status: ok, failed
	)

	DelayedProjectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delayed_project_duration_seconds",
			Help:      "Time spent processing one project batch",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Dispatch metrics
	ActionDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_dispatch_total",
			Help:      "Action future groups dispatched",
		},
		[]string{"callback", "status"}, // status: sent, queued, failed
	)

	NotifyQueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_queue_jobs_total",
			Help:      "Notify queue job settlements",
		},
		[]string{"outcome"}, // ok, retry, drop, dlq
	)
)

// Handler returns the Prometheus exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
