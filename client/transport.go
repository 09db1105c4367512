package client

import (
	"context"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/document"
)

// Transport carries the calls of a client to the server.
type Transport interface {
	ActivateClient(ctx context.Context, clientKey string) (clientID string, err error)
	DeactivateClient(ctx context.Context, clientID string) error
	AttachDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error)
	DetachDocument(ctx context.Context, clientID string, pack *change.Pack, removeIfNotAttached bool) (*change.Pack, error)
	RemoveDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error)
	PushPull(ctx context.Context, clientID string, pack *change.Pack, pushOnly bool) (*change.Pack, error)
	Watch(ctx context.Context, clientID, documentKey string) (WatchStream, error)
}

// WatchStream receives the events of a watched document, starting with the list of
// clients watching it.
type WatchStream interface {
	Recv() (document.WatchResponse, error)
	Close() error
}
