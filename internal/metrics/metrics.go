// Package metrics registers the Prometheus collectors for carboncounter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carboncounter"

var (
	// FixesTotal counts location fixes by filter outcome.
	FixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_total",
			Help:      "Location fixes processed, by outcome",
		},
		[]string{"outcome"},
	)

	// FixesDropped counts fixes discarded because the engine queue was full.
	FixesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fixes_dropped_total",
		Help:      "Fixes dropped because the engine queue was full",
	})

	// SessionsTotal counts session transitions by event (start, end).
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Driving session transitions",
		},
		[]string{"event"},
	)

	// SessionDistance observes the distance of completed sessions.
	SessionDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_distance_meters",
		Help:      "Distance of completed driving sessions",
		Buckets:   []float64{100, 500, 1000, 5000, 10000, 25000, 50000, 100000},
	})

	// EmissionsGrams counts grams of CO2 attributed to completed sessions.
	EmissionsGrams = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emissions_grams_total",
		Help:      "Grams of CO2 estimated for completed sessions",
	})

	// RolloversTotal counts buffer rollovers by kind (daily, weekly).
	RolloversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "Aggregate buffer rollovers",
		},
		[]string{"kind"},
	)

	// SideEffectFailures counts failed persistence and sync calls by target.
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Failed persistence, history and backend calls",
		},
		[]string{"target"},
	)

	// HTTPRequests counts server requests by route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the ingest server",
		},
		[]string{"route", "status"},
	)
)

// Side-effect targets.
const (
	TargetState   = "state"
	TargetBackend = "backend"
	TargetHistory = "history"
)
