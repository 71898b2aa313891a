// Package metrics holds the Prometheus collectors shared by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Subscribers tracks connected realtime subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytmcompanion_realtime_subscribers",
		Help: "The number of connected realtime subscribers",
	})

	// HostConnected is 1 while a media surface host is attached.
	HostConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytmcompanion_host_connected",
		Help: "Whether a media surface host is attached (0 or 1)",
	})

	// RateLimited counts requests rejected by the rate limit gate.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytmcompanion_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"route"})

	// PairingOutcomes counts resolved pairing sessions.
	PairingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytmcompanion_pairing_outcomes_total",
		Help: "Resolved pairing sessions by outcome",
	}, []string{"outcome"}) // approved, denied, timed_out, cancelled, connection_lost

	// CommandsDispatched counts commands forwarded to the media surface.
	CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytmcompanion_commands_dispatched_total",
		Help: "Commands forwarded to the media surface",
	}, []string{"command"})

	// CommandsDropped counts valid commands dropped because no surface was attached.
	CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytmcompanion_commands_dropped_total",
		Help: "Valid commands dropped while the media surface was unavailable",
	})

	// BroadcastEvents counts realtime events fanned out to subscribers.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytmcompanion_broadcast_events_total",
		Help: "Realtime events published to subscribers",
	}, []string{"event"})

	// SubscriberDrops counts events skipped for a subscriber with a full buffer.
	SubscriberDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytmcompanion_subscriber_drops_total",
		Help: "Events not delivered because a subscriber send buffer was full",
	})
)

// Handler returns the HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncRateLimited increments the rejection counter for route.
func IncRateLimited(route string) {
	RateLimited.WithLabelValues(route).Inc()
}

// IncPairingOutcome increments the outcome counter.
func IncPairingOutcome(outcome string) {
	PairingOutcomes.WithLabelValues(outcome).Inc()
}

// IncCommand increments the dispatched counter for command.
func IncCommand(command string) {
	CommandsDispatched.WithLabelValues(command).Inc()
}

// IncBroadcast increments the broadcast counter for event.
func IncBroadcast(event string) {
	BroadcastEvents.WithLabelValues(event).Inc()
}
