package server

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the work of a server.
type Metrics struct {
	Requests      metrics.Counter
	PushedChanges metrics.Counter
	PulledChanges metrics.Counter
	Snapshots     metrics.Counter
	Watchers      metrics.Gauge
}

// NewMetrics creates the server metrics, registered in the default prometheus registry
// when enabled and discarded otherwise.
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{
			Requests:      discard.NewCounter(),
			PushedChanges: discard.NewCounter(),
			PulledChanges: discard.NewCounter(),
			Snapshots:     discard.NewCounter(),
			Watchers:      discard.NewGauge(),
		}
	}
	return &Metrics{
		Requests: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causal_doc",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Number of requests",
		}, []string{"path", "code"}),
		PushedChanges: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causal_doc",
			Subsystem: "server",
			Name:      "pushed_changes_total",
			Help:      "Number of changes stored",
		}, nil),
		PulledChanges: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causal_doc",
			Subsystem: "server",
			Name:      "pulled_changes_total",
			Help:      "Number of changes sent to clients",
		}, nil),
		Snapshots: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causal_doc",
			Subsystem: "server",
			Name:      "snapshots_total",
			Help:      "Number of snapshots sent to clients",
		}, nil),
		Watchers: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "causal_doc",
			Subsystem: "server",
			Name:      "watchers",
			Help:      "Number of open watch streams",
		}, nil),
	}
}
