package client_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/client"
	"github.com/brunokim/causal-doc/document"
	"github.com/brunokim/causal-doc/server"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func newServer(t *testing.T, opts ...server.Option) string {
	t.Helper()
	s := server.New(opts...)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts.URL
}

func newMetrics() *client.Metrics {
	return &client.Metrics{
		PushPulls:       generic.NewCounter("pushpulls"),
		PushedChanges:   generic.NewCounter("pushed"),
		PulledChanges:   generic.NewCounter("pulled"),
		Snapshots:       generic.NewCounter("snapshots"),
		WatchReconnects: generic.NewCounter("reconnects"),
		Errors:          generic.NewCounter("errors"),
		Garbage:         generic.NewGauge("garbage"),
	}
}

func newClient(t *testing.T, transport client.Transport, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{
		client.WithTransport(transport),
		client.WithReconnectDelay(tick),
	}, opts...)
	cli, err := client.New(opts...)
	require.NoError(t, err)
	require.NoError(t, cli.Activate(context.Background()))
	t.Cleanup(func() { cli.Deactivate(context.Background()) })
	return cli
}

// marshal reads a document holding the lock of its attachment.
func marshal(cli *client.Client, doc *document.Document) string {
	if att, ok := cli.Attachment(doc.Key()); ok {
		att.Lock()
		defer att.Unlock()
	}
	return doc.Marshal()
}

// eventLog records the events of a document, which arrive from the watch goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []document.Event
}

func (l *eventLog) add(e document.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []document.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var types []document.EventType
	for _, e := range l.events {
		types = append(types, e.Type)
	}
	return types
}

// flakyTransport fails the first watches it is asked for.
type flakyTransport struct {
	client.Transport
	mu       sync.Mutex
	failures int
}

func (t *flakyTransport) Watch(ctx context.Context, clientID, documentKey string) (client.WatchStream, error) {
	t.mu.Lock()
	fail := t.failures > 0
	if fail {
		t.failures--
	}
	t.mu.Unlock()
	if fail {
		return nil, context.DeadlineExceeded
	}
	return t.Transport.Watch(ctx, clientID, documentKey)
}
