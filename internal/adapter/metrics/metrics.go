package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livefeed"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Set bundles every metric group registered on one registry.
type Set struct {
	Registry *prometheus.Registry
	HTTP     *HTTPMetrics
	Live     *LiveMetrics
	Feed     *FeedMetrics
}

func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry: reg,
		HTTP:     NewHTTPMetrics(reg),
		Live:     NewLiveMetrics(reg),
		Feed:     NewFeedMetrics(reg),
	}
}

func (s *Set) Handler() http.Handler {
	return Handler(s.Registry)
}
