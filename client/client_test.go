package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/brunokim/causal-doc/api"
	"github.com/brunokim/causal-doc/client"
	"github.com/brunokim/causal-doc/document"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/proxy"
	"github.com/brunokim/causal-doc/server"
)

func TestNewRequiresTransport(t *testing.T) {
	_, err := client.New()
	assert.ErrorIs(t, err, client.ErrNoTransport)
}

func TestDefaultKey(t *testing.T) {
	defer client.MockClientKeys("k1", "k2")()
	url := newServer(t)
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	c2 := newClient(t, client.NewHTTPTransport(url, nil))
	assert.Equal(t, "k1", c1.Key())
	assert.Equal(t, "k2", c2.Key())
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestActivate(t *testing.T) {
	url := newServer(t)
	cli := newClient(t, client.NewHTTPTransport(url, nil), client.WithKey("editor"))
	assert.True(t, cli.IsActive())
	assert.Equal(t, "editor", cli.Key())
	id := cli.ID()

	// The same key is the same client.
	other := newClient(t, client.NewHTTPTransport(url, nil), client.WithKey("editor"))
	assert.Equal(t, id, other.ID())

	require.NoError(t, cli.Deactivate(context.Background()))
	assert.False(t, cli.IsActive())
	err := cli.Attach(context.Background(), document.New("doc"))
	assert.ErrorIs(t, err, client.ErrClientNotActivated)
}

func TestAttachSyncDetach(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	c2 := newClient(t, client.NewHTTPTransport(url, nil))

	d1 := document.New("doc")
	require.NoError(t, d1.Update(func(root *proxy.Object, _ *presence.Presence) error {
		return root.Set("offline", true)
	}, "before attach"))
	require.NoError(t, c1.Attach(ctx, d1))
	assert.Equal(t, document.Attached, d1.Status())
	assert.False(t, d1.HasLocalChanges())
	assert.ErrorIs(t, c1.Attach(ctx, d1), client.ErrDocumentAlreadyAttached)

	d2 := document.New("doc")
	require.NoError(t, c2.Attach(ctx, d2))
	assert.Equal(t, `{"offline":true}`, d2.Marshal())

	att, ok := c1.Attachment("doc")
	require.True(t, ok)
	require.NoError(t, att.Update(func(root *proxy.Object, _ *presence.Presence) error {
		text, err := root.SetNewText("text")
		if err != nil {
			return err
		}
		return text.Edit(0, 0, "hello")
	}, ""))
	require.NoError(t, c1.Sync(ctx))
	require.NoError(t, c2.Sync(ctx, d2))
	assert.Equal(t, "hello", d2.Root().GetText("text").String())
	assert.Equal(t, d1.SortedMarshal(), d2.SortedMarshal())

	require.NoError(t, c2.Detach(ctx, d2))
	assert.Equal(t, document.Detached, d2.Status())
	_, ok = c2.Attachment("doc")
	assert.False(t, ok)
	assert.ErrorIs(t, c2.Sync(ctx, d2), client.ErrDocumentNotAttached)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	c2 := newClient(t, client.NewHTTPTransport(url, nil))
	d1, d2 := document.New("doc"), document.New("doc")
	require.NoError(t, c1.Attach(ctx, d1))
	require.NoError(t, c2.Attach(ctx, d2))

	require.NoError(t, c1.Remove(ctx, d1))
	assert.Equal(t, document.Removed, d1.Status())

	require.NoError(t, c2.Sync(ctx, d2))
	assert.Equal(t, document.Removed, d2.Status())
	_, ok := c2.Attachment("doc")
	assert.False(t, ok)

	err := c1.Attach(ctx, document.New("doc"))
	assert.ErrorIs(t, err, api.ErrDocumentRemoved)
}

func TestDetachRemoveIfNotAttached(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	cli := newClient(t, client.NewHTTPTransport(url, nil))
	doc := document.New("doc")
	require.NoError(t, cli.Attach(ctx, doc))
	require.NoError(t, cli.Detach(ctx, doc, client.WithRemoveIfNotAttached()))
	assert.Equal(t, document.Removed, doc.Status())
}

func TestSnapshotForLaggingClient(t *testing.T) {
	ctx := context.Background()
	url := newServer(t, server.WithSnapshotThreshold(3))
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	metrics := newMetrics()
	c2 := newClient(t, client.NewHTTPTransport(url, nil), client.WithMetrics(metrics))

	d1 := document.New("doc")
	require.NoError(t, c1.Attach(ctx, d1))
	for i := 0; i < 5; i++ {
		require.NoError(t, d1.Update(func(root *proxy.Object, _ *presence.Presence) error {
			return root.Set("n", i)
		}, ""))
	}
	require.NoError(t, c1.Sync(ctx))

	d2 := document.New("doc")
	require.NoError(t, c2.Attach(ctx, d2))
	assert.Equal(t, `{"n":4}`, d2.Marshal())
	assert.Equal(t, float64(1), metrics.Snapshots.(*generic.Counter).Value())
	assert.Equal(t, float64(0), metrics.PulledChanges.(*generic.Counter).Value())
}

func TestGarbageGauge(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	metrics := newMetrics()
	c1 := newClient(t, client.NewHTTPTransport(url, nil), client.WithMetrics(metrics))
	c2 := newClient(t, client.NewHTTPTransport(url, nil))
	d1, d2 := document.New("doc"), document.New("doc")
	require.NoError(t, c1.Attach(ctx, d1))
	require.NoError(t, c2.Attach(ctx, d2))

	require.NoError(t, d1.Update(func(root *proxy.Object, _ *presence.Presence) error {
		return root.Set("k", "v")
	}, ""))
	require.NoError(t, d1.Update(func(root *proxy.Object, _ *presence.Presence) error {
		return root.Delete("k")
	}, ""))
	require.NoError(t, c1.Sync(ctx))

	// The removal can't be purged before c2 pulls it.
	assert.Equal(t, float64(1), metrics.Garbage.(*generic.Gauge).Value())
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	url := newServer(t)
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	c2 := newClient(t, client.NewHTTPTransport(url, nil))

	d1, d2 := document.New("doc"), document.New("doc")
	var events eventLog
	d2.Subscribe("", events.add)
	require.NoError(t, c2.Attach(ctx, d2, client.WithPresence(presence.Data{"name": "bob"})))
	require.NoError(t, c2.Watch(ctx, d2))
	assert.ErrorIs(t, c2.Watch(ctx, d2), client.ErrAlreadyWatching)

	require.NoError(t, c1.Attach(ctx, d1, client.WithPresence(presence.Data{"name": "ann"})))
	require.NoError(t, c1.Watch(ctx, d1))
	id1 := c1.ID().String()
	assert.Eventually(t, func() bool {
		att, _ := c2.Attachment("doc")
		att.Lock()
		defer att.Unlock()
		data, ok := d2.Presence(id1)
		return ok && data["name"] == "ann"
	}, waitFor, tick)

	att, _ := c1.Attachment("doc")
	require.NoError(t, att.Update(func(root *proxy.Object, _ *presence.Presence) error {
		return root.Set("greeting", "hi")
	}, ""))
	require.NoError(t, c1.Sync(ctx))
	assert.Eventually(t, func() bool {
		return gjson.Get(marshal(c2, d2), "greeting").String() == "hi"
	}, waitFor, tick)

	require.NoError(t, c1.Detach(ctx, d1))
	assert.Eventually(t, func() bool {
		att, _ := c2.Attachment("doc")
		att.Lock()
		defer att.Unlock()
		_, ok := d2.Presence(id1)
		return !ok
	}, waitFor, tick)
	assert.Contains(t, events.types(), document.RemoteChange)
	assert.Contains(t, events.types(), document.Unwatched)
}

func TestWatchReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	url := newServer(t)
	metrics := newMetrics()
	flaky := &flakyTransport{Transport: client.NewHTTPTransport(url, nil), failures: 2}
	c1 := newClient(t, client.NewHTTPTransport(url, nil))
	c2 := newClient(t, flaky, client.WithMetrics(metrics))

	d1, d2 := document.New("doc"), document.New("doc")
	require.NoError(t, c1.Attach(ctx, d1))
	require.NoError(t, c2.Attach(ctx, d2))
	require.NoError(t, c2.Watch(ctx, d2))

	// Changes pushed before the stream opens are only pulled when the next one is
	// announced, so keep pushing.
	assert.Eventually(t, func() bool {
		err := d1.Update(func(root *proxy.Object, _ *presence.Presence) error {
			return root.Set("k", 1)
		}, "")
		if err != nil || c1.Sync(ctx) != nil {
			return false
		}
		return marshal(c2, d2) == `{"k":1}`
	}, waitFor, 5*tick)
	assert.Equal(t, float64(0), metrics.WatchReconnects.(*generic.Counter).Value(),
		"failures before the first connection are not reconnects")
}

func TestSyncAfterServerError(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	metrics := newMetrics()
	cli := newClient(t, client.NewHTTPTransport(url, nil), client.WithMetrics(metrics))
	doc := document.New("doc")
	require.NoError(t, cli.Attach(ctx, doc))

	// Another client with the same key deactivates it in the server.
	other := newClient(t, client.NewHTTPTransport(url, nil), client.WithKey(cli.Key()))
	require.NoError(t, other.Deactivate(ctx))

	err := cli.Sync(ctx, doc)
	assert.ErrorIs(t, err, api.ErrClientNotActivated)
	assert.Equal(t, float64(1), metrics.Errors.(*generic.Counter).Value())
}

func TestLoadConfig(t *testing.T) {
	conf, err := client.LoadConfig("testdata/client.toml")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8009", conf.ServerURL)
	assert.Equal(t, "editor-1", conf.Key)
	assert.Equal(t, 500*time.Millisecond, conf.ReconnectDelay.Duration)
	assert.False(t, conf.Metrics)
	assert.Len(t, conf.Options(), 4)

	_, err = client.LoadConfig("testdata/no-server.toml")
	assert.Error(t, err)
	_, err = client.LoadConfig("testdata/missing.toml")
	assert.Error(t, err)
}
