package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeHandled  = "handled"
	outcomeDropped  = "dropped"
	outcomeFiltered = "filtered"
	outcomePanic    = "panic"
)

// Metrics holds the Prometheus metrics for event dispatch.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
	dropsTotal  *prometheus.CounterVec
}

// NewMetrics creates the dispatch metrics and registers them on the given
// registerer (nil means the default registerer).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptrack_events_total",
				Help: "Lifecycle events observed by event name and outcome",
			},
			[]string{"event", "outcome"},
		),
		dropsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptrack_event_drops_total",
				Help: "Events dropped during payload extraction by event name and field",
			},
			[]string{"event", "field"},
		),
	}

	reg.MustRegister(m.eventsTotal, m.dropsTotal)
	return m
}

// countEvent is nil-safe so the bus and listener can run without metrics.
func (m *Metrics) countEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) countDrop(event, field string) {
	if m == nil {
		return
	}
	m.dropsTotal.WithLabelValues(event, field).Inc()
}
