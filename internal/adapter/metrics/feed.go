package metrics

import "github.com/prometheus/client_golang/prometheus"

// FeedMetrics holds Prometheus metrics for event ingress.
type FeedMetrics struct {
	EventsCreated prometheus.Counter
	HistorySize   prometheus.Gauge
}

// NewFeedMetrics creates and registers feed metrics on the given registry.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	m := &FeedMetrics{
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_created_total",
			Help:      "Total number of update events created.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "history_size",
			Help:      "Number of events currently retained in history.",
		}),
	}

	reg.MustRegister(m.EventsCreated, m.HistorySize)
	return m
}
