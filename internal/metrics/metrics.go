package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds the service's prometheus collectors.
type Set struct {
	ClaimsTotal   *prometheus.CounterVec
	WSConnections prometheus.Gauge
	EventsDropped prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classroom",
			Name:      "claims_total",
			Help:      "Seat claim attempts by outcome.",
		}, []string{"outcome"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classroom",
			Name:      "ws_connections",
			Help:      "Live websocket subscriber connections.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classroom",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber send queue was full.",
		}),
	}
	reg.MustRegister(s.ClaimsTotal, s.WSConnections, s.EventsDropped)
	return s
}

// NewUnregistered returns a Set on a private registry, for tests.
func NewUnregistered() *Set {
	return New(prometheus.NewRegistry())
}
