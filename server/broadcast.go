package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/brunokim/causal-doc/document"
)

// Broadcaster fans the events of a document out to its watchers.
type Broadcaster interface {
	Publish(ctx context.Context, documentKey string, resp document.WatchResponse) error
	// Subscribe returns the events published for a document until cancel is called.
	Subscribe(ctx context.Context, documentKey string) (events <-chan document.WatchResponse, cancel func(), err error)
	Close() error
}

// subscriptionBuffer is how many events a slow watcher may lag behind before losing
// them.
const subscriptionBuffer = 64

// Hub is a Broadcaster within a single process.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan document.WatchResponse
	logger log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger log.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[int]chan document.WatchResponse),
		logger: logger,
	}
}

// Publish sends resp to every subscriber of the document. Subscribers with a full
// buffer miss it.
func (h *Hub) Publish(_ context.Context, documentKey string, resp document.WatchResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[documentKey] {
		select {
		case ch <- resp:
		default:
			level.Warn(h.logger).Log("msg", "dropped watch event for slow watcher", "document", documentKey, "type", resp.Type)
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, documentKey string) (<-chan document.WatchResponse, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan document.WatchResponse, subscriptionBuffer)
	if h.subs[documentKey] == nil {
		h.subs[documentKey] = make(map[int]chan document.WatchResponse)
	}
	h.subs[documentKey][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[documentKey], id)
			if len(h.subs[documentKey]) == 0 {
				delete(h.subs, documentKey)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (h *Hub) Close() error {
	return nil
}

// RedisBroadcaster is a Broadcaster over Redis pub/sub, so that watchers connected to
// different server instances see the same events.
type RedisBroadcaster struct {
	rdb    *redis.Client
	logger log.Logger
}

// NewRedisBroadcaster connects to the Redis server at addr.
func NewRedisBroadcaster(ctx context.Context, addr string, logger log.Logger) (*RedisBroadcaster, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", addr)
	}
	return &RedisBroadcaster{rdb: rdb, logger: logger}, nil
}

func channelName(documentKey string) string {
	return "causal-doc:watch:" + documentKey
}

func (b *RedisBroadcaster) Publish(ctx context.Context, documentKey string, resp document.WatchResponse) error {
	bs, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode watch event")
	}
	if err := b.rdb.Publish(ctx, channelName(documentKey), bs).Err(); err != nil {
		return errors.Wrapf(err, "publish watch event of %s", documentKey)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, documentKey string) (<-chan document.WatchResponse, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, channelName(documentKey))
	// Wait for the confirmation, so that no event published after Subscribe is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, errors.Wrapf(err, "subscribe to %s", documentKey)
	}

	events := make(chan document.WatchResponse, subscriptionBuffer)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var resp document.WatchResponse
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				level.Warn(b.logger).Log("msg", "ignored malformed watch event", "document", documentKey, "err", err)
				continue
			}
			select {
			case events <- resp:
			default:
				level.Warn(b.logger).Log("msg", "dropped watch event for slow watcher", "document", documentKey, "type", resp.Type)
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}
	return events, cancel, nil
}

func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}
