package server_test

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/document"
	"github.com/brunokim/causal-doc/server"
)

func TestHub(t *testing.T) {
	ctx := context.Background()
	hub := server.NewHub(log.NewNopLogger())
	docEvents, cancelDoc, err := hub.Subscribe(ctx, "doc")
	require.NoError(t, err)
	otherEvents, cancelOther, err := hub.Subscribe(ctx, "other")
	require.NoError(t, err)
	defer cancelOther()

	changed := document.WatchResponse{Type: document.DocumentChanged, Publisher: "a"}
	require.NoError(t, hub.Publish(ctx, "doc", changed))
	assert.Equal(t, changed, <-docEvents)
	assert.Empty(t, otherEvents)

	cancelDoc()
	cancelDoc()
	_, ok := <-docEvents
	assert.False(t, ok, "channel is closed after cancel")
	require.NoError(t, hub.Publish(ctx, "doc", changed))
}

func TestHubDropsForSlowWatchers(t *testing.T) {
	ctx := context.Background()
	hub := server.NewHub(log.NewNopLogger())
	events, cancel, err := hub.Subscribe(ctx, "doc")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 100; i++ {
		require.NoError(t, hub.Publish(ctx, "doc", document.WatchResponse{Type: document.DocumentChanged}))
	}
	assert.Len(t, events, 64)
}
