// Package metrics provides Prometheus metrics for the reconciliation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks finished runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by final status",
		},
		[]string{"tenant_id", "status"},
	)

	// RunDuration tracks end-to-end run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tenant_id"},
	)

	// RowsProcessed tracks rows read per side
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "rows_total",
			Help:      "Total number of source rows processed by side and classification",
		},
		[]string{"outcome"},
	)

	// ExceptionsCreated tracks exceptions emitted by runs
	ExceptionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "exceptions",
			Name:      "created_total",
			Help:      "Total number of exceptions created by kind",
		},
		[]string{"kind"},
	)

	// ExceptionTransitions tracks resolve and suspend actions
	ExceptionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "exceptions",
			Name:      "transitions_total",
			Help:      "Total number of exception transitions by target status and result",
		},
		[]string{"status", "result"},
	)

	// RunLockContention tracks runs rejected because the workspace was busy
	RunLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "lock_contention_total",
			Help:      "Total number of runs rejected because another run held the workspace lock",
		},
	)

	// RunsInFlight tracks runs currently executing
	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "runs_in_flight",
			Help:      "Number of reconciliation runs currently executing",
		},
	)

	// EventsPublished tracks domain events sent to kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of domain events published by type and result",
		},
		[]string{"event_type", "result"},
	)
)
