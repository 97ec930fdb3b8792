package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts handled events per outcome and times the twin update call.
type Metrics struct {
	events        *prometheus.CounterVec
	updateSeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound telemetry events by outcome.",
		}, []string{"outcome"}),
		updateSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_twin_update_seconds",
			Help:    "Latency of the digital twin update call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.updateSeconds)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.updateSeconds.Observe(d.Seconds())
}
