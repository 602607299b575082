// Package metrics declares the Prometheus collectors the room server
// exposes at /metrics. Naming follows the corpus convention of
// namespace_name, flat (no subsystem) so the exposed series match the
// documented names exactly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoomsActive is the current number of live rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dradu",
		Name:      "rooms_active",
		Help:      "Current number of active rooms.",
	})

	// PlayersActive is the current number of connected players per room.
	PlayersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dradu",
		Name:      "players_active",
		Help:      "Current number of connected players, labeled by room id.",
	}, []string{"room_id"})

	// MessagesTotal counts every inbound/outbound message by type.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dradu",
		Name:      "messages_total",
		Help:      "Total dradu messages processed, labeled by message type and direction.",
	}, []string{"message_type", "direction"})

	// ProtocolErrorsTotal counts failures classified by the stage that
	// raised them (front_desk, room_dispatch, rate_limited, ...).
	ProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dradu",
		Name:      "protocol_errors_total",
		Help:      "Total protocol/semantic errors, labeled by stage.",
	}, []string{"stage"})

	// BroadcastFailuresTotal counts per-recipient send failures during a
	// room broadcast. A broadcast failure removes only that one recipient.
	BroadcastFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dradu",
		Name:      "broadcast_failures_total",
		Help:      "Total per-recipient broadcast send failures.",
	})

	// MessageProcessingSeconds times dispatch of one inbound message.
	MessageProcessingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dradu",
		Name:      "message_processing_seconds",
		Help:      "Time spent dispatching one inbound message.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"message_type"})

	// CircuitBreakerState tracks breaker state: 0=closed, 1=open, 2=half-open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dradu",
		Name:      "circuit_breaker_state",
		Help:      "Current circuit breaker state, labeled by breaker name.",
	}, []string{"breaker"})
)
