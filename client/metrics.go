package client

import (
	"context"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/brunokim/causal-doc/change"
)

// Metrics counts the work of a client.
type Metrics struct {
	PushPulls       metrics.Counter
	PushedChanges   metrics.Counter
	PulledChanges   metrics.Counter
	Snapshots       metrics.Counter
	WatchReconnects metrics.Counter
	Errors          metrics.Counter
	// Garbage is the number of tombstones left in the last synced document.
	Garbage metrics.Gauge
}

// NewMetrics creates the client metrics, registered in the default prometheus registry
// when enabled and discarded otherwise.
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{
			PushPulls:       discard.NewCounter(),
			PushedChanges:   discard.NewCounter(),
			PulledChanges:   discard.NewCounter(),
			Snapshots:       discard.NewCounter(),
			WatchReconnects: discard.NewCounter(),
			Errors:          discard.NewCounter(),
			Garbage:         discard.NewGauge(),
		}
	}
	counter := func(name, help string) metrics.Counter {
		return prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causal_doc",
			Subsystem: "client",
			Name:      name,
			Help:      help,
		}, nil)
	}
	return &Metrics{
		PushPulls:       counter("pushpulls_total", "Number of push-pull calls"),
		PushedChanges:   counter("pushed_changes_total", "Number of changes pushed"),
		PulledChanges:   counter("pulled_changes_total", "Number of changes pulled"),
		Snapshots:       counter("snapshots_total", "Number of snapshots pulled"),
		WatchReconnects: counter("watch_reconnects_total", "Number of times a watch stream was reopened"),
		Errors:          counter("errors_total", "Number of failed calls"),
		Garbage: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "causal_doc",
			Subsystem: "client",
			Name:      "garbage_nodes",
			Help:      "Tombstones not yet purged in the last synced document",
		}, nil),
	}
}

// instrumentedTransport counts the packs going through a transport.
type instrumentedTransport struct {
	Transport
	metrics *Metrics
}

func instrument(t Transport, m *Metrics) Transport {
	return instrumentedTransport{Transport: t, metrics: m}
}

func (t instrumentedTransport) count(sent, received *change.Pack, err error) {
	if err != nil {
		t.metrics.Errors.Add(1)
		return
	}
	t.metrics.PushedChanges.Add(float64(sent.ChangesLen()))
	t.metrics.PulledChanges.Add(float64(received.ChangesLen()))
	if len(received.Snapshot) > 0 {
		t.metrics.Snapshots.Add(1)
	}
}

func (t instrumentedTransport) AttachDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error) {
	resp, err := t.Transport.AttachDocument(ctx, clientID, pack)
	t.count(pack, resp, err)
	return resp, err
}

func (t instrumentedTransport) DetachDocument(ctx context.Context, clientID string, pack *change.Pack, removeIfNotAttached bool) (*change.Pack, error) {
	resp, err := t.Transport.DetachDocument(ctx, clientID, pack, removeIfNotAttached)
	t.count(pack, resp, err)
	return resp, err
}

func (t instrumentedTransport) RemoveDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error) {
	resp, err := t.Transport.RemoveDocument(ctx, clientID, pack)
	t.count(pack, resp, err)
	return resp, err
}

func (t instrumentedTransport) PushPull(ctx context.Context, clientID string, pack *change.Pack, pushOnly bool) (*change.Pack, error) {
	t.metrics.PushPulls.Add(1)
	resp, err := t.Transport.PushPull(ctx, clientID, pack, pushOnly)
	t.count(pack, resp, err)
	return resp, err
}
