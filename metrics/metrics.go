// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_events_classified_total",
			Help: "Inbound chat events by classification",
		},
		[]string{"kind"}, // "ignored", "command", "booking"
	)

	BookingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_ingest_results_total",
			Help: "Booking events by ingestion result",
		},
		[]string{"result"},
	)

	DispatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_dispatch_errors_total",
			Help: "Events whose handling failed with an infrastructure error",
		},
	)

	CommandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_commands_total",
			Help: "Admin commands by name and status",
		},
		[]string{"command", "status"},
	)

	BackfillMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_backfill_messages_total",
			Help: "Backfill message outcomes",
		},
		[]string{"result"},
	)

	// Reporting metrics
	ReportsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_reports_published_total",
			Help: "Published reports by kind and status",
		},
		[]string{"kind", "status"},
	)

	LedgerCleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_ledger_cleanup_removed_total",
			Help: "Processed-message markers pruned by retention cleanup",
		},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_event_queue_depth",
			Help: "Inbound chat events waiting for dispatch",
		},
	)
)
