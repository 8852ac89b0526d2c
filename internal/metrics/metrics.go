// Package metrics exposes the Prometheus collectors for the account
// workflows. Collectors register on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// Outcome label values shared by the workflow counters.
const (
	OutcomeSuccess   = "success"
	OutcomeInvalid   = "invalid"
	OutcomeConflict  = "conflict"
	OutcomeThrottled = "throttled"
	OutcomeExpired   = "expired"
	OutcomeInactive  = "inactive"
	OutcomeError     = "error"
)

var (
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome.",
	}, []string{"outcome"})

	Activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activations_total",
		Help:      "Activation attempts by outcome.",
	}, []string{"outcome"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Activation emails that could not be delivered.",
	})

	Reaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaped_total",
		Help:      "Rows removed by the expiry reaper.",
	}, []string{"kind"})

	ReaperRuns = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reaper_run_seconds",
		Help:      "Duration of reaper sweeps.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
