// Package metrics provides Prometheus instrumentation for the dialogue engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed conversation turns by resolved intent.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_turns_total",
			Help: "Total processed conversation turns",
		},
		[]string{"intent"},
	)

	// BookingsTotal counts committed bookings by domain.
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Total committed bookings",
		},
		[]string{"domain"},
	)

	// BookingConflictsTotal counts commits lost to a concurrent booking.
	BookingConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Total booking attempts that hit an already-taken slot",
		},
		[]string{"domain"},
	)

	// EscalationsTotal counts escalation tickets created.
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total escalation tickets created",
		},
	)

	// OracleFailuresTotal counts failed oracle calls by operation.
	OracleFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_failures_total",
			Help: "Total semantic oracle calls that failed or returned garbage",
		},
		[]string{"op"},
	)

	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
)
