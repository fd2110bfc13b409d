package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueuePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_queue_publishes_total",
			Help: "Total number of messages published per topic",
		},
		[]string{"topic", "outcome"},
	)

	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_send_attempts_total",
			Help: "Total number of delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_send_duration_seconds",
			Help: "Duration of provider send calls in seconds",
		},
		[]string{"channel"},
	)

	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retries_scheduled_total",
			Help: "Total number of retries scheduled by backoff level",
		},
		[]string{"level"},
	)

	RetryHolds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retry_holds_total",
			Help: "Total number of hold-and-requeue cycles in the retry scheduler",
		},
	)

	DeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_dead_lettered_total",
			Help: "Total number of notifications routed to the dead-letter queue",
		},
	)

	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_audit_events_total",
			Help: "Total number of audit events published by type",
		},
		[]string{"event_type", "outcome"},
	)
)
