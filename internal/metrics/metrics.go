package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks live realtime connections.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_active_connections",
			Help: "Number of live realtime connections",
		},
	)

	// MessagesSent counts send attempts by result (ok, rejected, failed).
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_messages_sent_total",
			Help: "Total chat message send attempts by result",
		},
		[]string{"result"},
	)

	// PresenceTransitions counts online/offline transitions that were
	// actually broadcast (grace-window reconnects are absorbed).
	PresenceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_presence_transitions_total",
			Help: "Total presence transitions broadcast by state",
		},
		[]string{"state"},
	)

	// EventsDropped counts events dropped for closed or slow clients.
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_events_dropped_total",
			Help: "Total realtime events dropped before delivery",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		MessagesSent,
		PresenceTransitions,
		EventsDropped,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
