package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveMetrics holds Prometheus metrics for the live channel.
type LiveMetrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	DeliveriesTotal   prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec
	HeartbeatsTotal   prometheus.Counter
	SendDuration      prometheus.Histogram
}

// NewLiveMetrics creates and registers live channel metrics on the given registry.
func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	m := &LiveMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_connections",
			Help:      "Number of registered live channel connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connections_total",
			Help:      "Total number of live channel connections accepted.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast passes.",
		}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "deliveries_total",
			Help:      "Total number of messages written to clients.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "delivery_failures_total",
			Help:      "Total number of failed deliveries by reason.",
		}, []string{"reason"}),
		HeartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "heartbeats_total",
			Help:      "Total number of client heartbeats answered.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "send_duration_seconds",
			Help:      "Time spent writing a single message to a client.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.BroadcastsTotal,
		m.DeliveriesTotal,
		m.DeliveryFailures,
		m.HeartbeatsTotal,
		m.SendDuration,
	)
	return m
}
