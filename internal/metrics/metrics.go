// Package metrics provides Prometheus instrumentation for the
// scheduler's core business signals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "starscheduler_active_sessions",
		Help: "Number of registry sessions currently marked connected.",
	})

	EventsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starscheduler_events_fired_total",
		Help: "Total number of event firings dispatched, by event name.",
	}, []string{"event"})

	DispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starscheduler_dispatch_failures_total",
		Help: "Total number of per-client dispatch failures, by transport.",
	}, []string{"transport"})

	ClientWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starscheduler_client_warnings_total",
		Help: "Total client warnings: connect failures and non-empty stderr results.",
	})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starscheduler_dispatch_duration_seconds",
		Help:    "Per-client dispatch call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "action"})
)
