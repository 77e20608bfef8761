package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification outcomes.
const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_notifications_total",
			Help: "Total number of notification dispatch attempts by transport and outcome.",
		},
		[]string{"transport", "outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_notify_circuit_breaker_state",
			Help: "Current state of a notification transport circuit breaker (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)
)
