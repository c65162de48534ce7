package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Routing paths recorded by RouterMessages.
const (
	PathEmpty    = "empty"
	PathFast     = "fast"
	PathSlow     = "slow"
	PathFallback = "fallback"
)

var (
	// RouterMessages counts routed messages by the path they took.
	RouterMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumio",
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Inbound messages routed, by routing path.",
		},
		[]string{"path"},
	)

	// RouterIntents counts classifier results by intent and recovery outcome.
	RouterIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumio",
			Subsystem: "router",
			Name:      "intents_total",
			Help:      "Classified intents, by intent and recovery outcome.",
		},
		[]string{"intent", "outcome"},
	)

	// HandlerPanics counts handler panics recovered by the router.
	HandlerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumio",
			Subsystem: "router",
			Name:      "handler_panics_total",
			Help:      "Handler panics recovered by the router, by handler.",
		},
		[]string{"handler"},
	)

	// RemindersSent counts reminder deliveries by platform and result.
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumio",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder delivery attempts, by platform and result.",
		},
		[]string{"platform", "result"},
	)
)
