// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Total number of applied booking status transitions",
	}, []string{"status", "source"})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_idempotent_replays_total",
		Help: "Total number of create requests answered from an idempotency key",
	})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Total number of checkout session attempts",
	}, []string{"outcome"})

	PaymentProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_errors_total",
		Help: "Total number of payment provider failures by category",
	}, []string{"category"})

	StripeRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_request_latency_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Total number of payment webhook events by type and outcome",
	}, []string{"event_type", "outcome"})

	SweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_sweeper_runs_total",
		Help: "Total number of pending-session sweeper runs",
	}, []string{"outcome"})

	SweeperReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_sweeper_reconciled_total",
		Help: "Total number of bookings marked paid by the sweeper",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
