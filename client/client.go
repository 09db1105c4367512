/*
Package client synchronizes documents with a server.

A client is activated once, then attaches documents: attaching pushes the local changes
of a document and pulls its state from the server. Sync exchanges changes afterwards,
and Watch keeps a stream open so that changes of other clients are pulled as soon as
they are pushed, and their presences are tracked.

	cli, err := client.New(client.WithTransport(client.NewHTTPTransport(url, nil)))
	err = cli.Activate(ctx)
	doc := document.New("notes")
	err = cli.Attach(ctx, doc, client.WithPresence(presence.Data{"name": "ann"}))
	err = cli.Watch(ctx, doc)

Documents are not safe for concurrent use, and the watch goroutine changes them: once
attached, a document should be updated through its Attachment, which holds a lock.
*/
package client

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brunokim/causal-doc/document"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/proxy"
	"github.com/brunokim/causal-doc/ticket"
)

var (
	ErrNoTransport             = errors.New("client has no transport")
	ErrClientNotActivated      = errors.New("client is not activated")
	ErrDocumentNotAttached     = errors.New("document is not attached")
	ErrDocumentAlreadyAttached = errors.New("document is already attached")
	ErrAlreadyWatching         = errors.New("document is already watched")
)

var newClientKey = uuid.NewString // For testing

// Option configures a Client.
type Option func(*Client)

// WithKey sets the key that names the client for the server.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// WithTransport sets how the client reaches the server.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the logger of the client.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the counters of the client.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithReconnectDelay sets how long a watch waits before reopening a broken stream.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// Attachment is a document attached to the client. Its lock must be held to use the
// document while the client may be synchronizing it.
type Attachment struct {
	sync.Mutex
	doc *document.Document

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// Document returns the attached document.
func (a *Attachment) Document() *document.Document {
	return a.doc
}

// Update runs document.Update holding the lock of the attachment.
func (a *Attachment) Update(updater func(root *proxy.Object, p *presence.Presence) error, message string) error {
	a.Lock()
	defer a.Unlock()
	return a.doc.Update(updater, message)
}

// stopWatch ends the watch goroutine, if any, and waits for it unless wait is false.
// The lock must not be held when waiting, since the goroutine takes it.
func (a *Attachment) stopWatch(wait bool) {
	a.Lock()
	cancel, done := a.cancelWatch, a.watchDone
	a.cancelWatch, a.watchDone = nil, nil
	a.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if wait {
		<-done
	}
}

// Client is a replica of documents synchronized through a server. It is safe for
// concurrent use.
type Client struct {
	mu          sync.Mutex
	key         string
	id          ticket.ActorID
	activated   bool
	attachments map[string]*Attachment

	transport      Transport
	logger         log.Logger
	metrics        *Metrics
	reconnectDelay time.Duration
}

// New creates a deactivated client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		key:            newClientKey(),
		attachments:    make(map[string]*Attachment),
		logger:         log.NewNopLogger(),
		metrics:        NewMetrics(false),
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		return nil, ErrNoTransport
	}
	c.transport = instrument(c.transport, c.metrics)
	c.logger = log.With(c.logger, "client", c.key)
	return c, nil
}

// Key returns the key of the client.
func (c *Client) Key() string {
	return c.key
}

// ID returns the ID assigned by the server, which is the actor of the changes of the
// client.
func (c *Client) ID() ticket.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// IsActive returns whether the client is activated.
func (c *Client) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

// Activate registers the client in the server. Activating an active client does
// nothing.
func (c *Client) Activate(ctx context.Context) error {
	if c.IsActive() {
		return nil
	}
	clientID, err := c.transport.ActivateClient(ctx, c.key)
	if err != nil {
		return err
	}
	id, err := ticket.ActorIDFromHex(clientID)
	if err != nil {
		return errors.Wrap(err, "activate")
	}

	c.mu.Lock()
	c.id = id
	c.activated = true
	c.mu.Unlock()
	level.Info(c.logger).Log("msg", "activated client", "id", clientID)
	return nil
}

// Deactivate stops every watch and unregisters the client. Its documents become
// detached.
func (c *Client) Deactivate(ctx context.Context) error {
	if !c.IsActive() {
		return nil
	}
	c.mu.Lock()
	atts := make([]*Attachment, 0, len(c.attachments))
	for _, att := range c.attachments {
		atts = append(atts, att)
	}
	c.mu.Unlock()
	for _, att := range atts {
		att.stopWatch(true)
	}

	if err := c.transport.DeactivateClient(ctx, c.ID().String()); err != nil {
		return err
	}
	for _, att := range atts {
		att.Lock()
		att.doc.SetStatus(document.Detached)
		att.Unlock()
	}
	c.mu.Lock()
	c.attachments = make(map[string]*Attachment)
	c.activated = false
	c.mu.Unlock()
	level.Info(c.logger).Log("msg", "deactivated client")
	return nil
}

// Attachment returns the attachment of a document.
func (c *Client) Attachment(key string) (*Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	att, ok := c.attachments[key]
	return att, ok
}

func (c *Client) attachment(key string) (*Attachment, error) {
	att, ok := c.Attachment(key)
	if !ok {
		return nil, errors.Wrap(ErrDocumentNotAttached, key)
	}
	return att, nil
}

func (c *Client) detachment(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attachments, key)
}

func startSpan(ctx context.Context, name string, doc *document.Document) (context.Context, trace.Span) {
	return otel.Tracer("client").Start(ctx, name,
		trace.WithAttributes(attribute.String("document_key", doc.Key())),
	)
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

// AttachOption configures Attach.
type AttachOption func(*attachOptions)

type attachOptions struct {
	presence presence.Data
}

// WithPresence sets the initial presence of the client in the document.
func WithPresence(data presence.Data) AttachOption {
	return func(o *attachOptions) { o.presence = data }
}

// Attach pushes the local changes of doc, pulls its state from the server, and starts
// tracking it.
func (c *Client) Attach(ctx context.Context, doc *document.Document, opts ...AttachOption) error {
	ctx, span := startSpan(ctx, "client.Attach", doc)
	defer span.End()

	if !c.IsActive() {
		return fail(span, ErrClientNotActivated, "attach failed")
	}
	if doc.Status() != document.Detached {
		return fail(span, errors.Wrap(ErrDocumentAlreadyAttached, doc.Key()), "attach failed")
	}
	options := attachOptions{presence: presence.Data{}}
	for _, opt := range opts {
		opt(&options)
	}

	doc.SetActor(c.ID())
	err := doc.Update(func(_ *proxy.Object, p *presence.Presence) error {
		p.Set(options.presence)
		return nil
	}, "")
	if err != nil {
		return fail(span, err, "attach failed")
	}

	resp, err := c.transport.AttachDocument(ctx, c.ID().String(), doc.CreateChangePack())
	if err != nil {
		return fail(span, err, "attach failed")
	}
	if err := doc.ApplyChangePack(resp); err != nil {
		return fail(span, err, "attach failed")
	}
	if doc.Status() == document.Removed {
		return nil
	}
	doc.SetStatus(document.Attached)

	c.mu.Lock()
	c.attachments[doc.Key()] = &Attachment{doc: doc}
	c.mu.Unlock()
	level.Debug(c.logger).Log("msg", "attached document", "document", doc.Key(), "checkpoint", doc.Checkpoint())
	return nil
}

// DetachOption configures Detach.
type DetachOption func(*detachOptions)

type detachOptions struct {
	removeIfNotAttached bool
}

// WithRemoveIfNotAttached removes the document if no other client is attached to it.
func WithRemoveIfNotAttached() DetachOption {
	return func(o *detachOptions) { o.removeIfNotAttached = true }
}

// Detach stops watching doc, clears the presence of the client, and pushes the last
// local changes. The document is kept as it is, detached.
func (c *Client) Detach(ctx context.Context, doc *document.Document, opts ...DetachOption) error {
	ctx, span := startSpan(ctx, "client.Detach", doc)
	defer span.End()

	att, err := c.attachment(doc.Key())
	if err != nil {
		return fail(span, err, "detach failed")
	}
	var options detachOptions
	for _, opt := range opts {
		opt(&options)
	}
	att.stopWatch(true)

	att.Lock()
	defer att.Unlock()
	err = doc.Update(func(_ *proxy.Object, p *presence.Presence) error {
		p.Clear()
		return nil
	}, "")
	if err != nil {
		return fail(span, err, "detach failed")
	}
	resp, err := c.transport.DetachDocument(ctx, c.ID().String(), doc.CreateChangePack(), options.removeIfNotAttached)
	if err != nil {
		return fail(span, err, "detach failed")
	}
	if err := doc.ApplyChangePack(resp); err != nil {
		return fail(span, err, "detach failed")
	}
	if doc.Status() != document.Removed {
		doc.SetStatus(document.Detached)
	}
	c.detachment(doc.Key())
	level.Debug(c.logger).Log("msg", "detached document", "document", doc.Key())
	return nil
}

// Remove pushes the last local changes of doc and removes it from the server. Other
// clients find it removed on their next sync.
func (c *Client) Remove(ctx context.Context, doc *document.Document) error {
	ctx, span := startSpan(ctx, "client.Remove", doc)
	defer span.End()

	att, err := c.attachment(doc.Key())
	if err != nil {
		return fail(span, err, "remove failed")
	}
	att.stopWatch(true)

	att.Lock()
	defer att.Unlock()
	pack := doc.CreateChangePack()
	pack.IsRemoved = true
	resp, err := c.transport.RemoveDocument(ctx, c.ID().String(), pack)
	if err != nil {
		return fail(span, err, "remove failed")
	}
	if err := doc.ApplyChangePack(resp); err != nil {
		return fail(span, err, "remove failed")
	}
	c.detachment(doc.Key())
	level.Debug(c.logger).Log("msg", "removed document", "document", doc.Key())
	return nil
}

// Sync pushes the local changes of the given documents and pulls the changes of other
// clients, or of every attached document if none is given.
func (c *Client) Sync(ctx context.Context, docs ...*document.Document) error {
	var atts []*Attachment
	if len(docs) == 0 {
		c.mu.Lock()
		for _, att := range c.attachments {
			atts = append(atts, att)
		}
		c.mu.Unlock()
	}
	for _, doc := range docs {
		att, err := c.attachment(doc.Key())
		if err != nil {
			return err
		}
		atts = append(atts, att)
	}

	for _, att := range atts {
		if err := c.syncAttachment(ctx, att, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) syncAttachment(ctx context.Context, att *Attachment, pushOnly bool) error {
	att.Lock()
	defer att.Unlock()
	doc := att.doc
	ctx, span := startSpan(ctx, "client.Sync", doc)
	defer span.End()

	pack := doc.CreateChangePack()
	resp, err := c.transport.PushPull(ctx, c.ID().String(), pack, pushOnly)
	if err != nil {
		return fail(span, err, "sync failed")
	}
	if err := doc.ApplyChangePack(resp); err != nil {
		return fail(span, err, "sync failed")
	}
	span.SetAttributes(
		attribute.Int("pushed", pack.ChangesLen()),
		attribute.Int("pulled", resp.ChangesLen()),
	)
	c.metrics.Garbage.Set(float64(doc.GarbageLen()))
	if doc.Status() == document.Removed {
		// Called from the watch goroutine, so it can't be waited for.
		go att.stopWatch(false)
		c.detachment(doc.Key())
	}
	level.Debug(c.logger).Log(
		"msg", "synced document",
		"document", doc.Key(),
		"pushed", pack.ChangesLen(),
		"pulled", resp.ChangesLen(),
		"checkpoint", doc.Checkpoint(),
	)
	return nil
}

// Watch starts a goroutine that follows the events of doc until ctx ends or the
// document is detached. Changes of other clients are pulled as soon as they are
// announced, and their presences are tracked. A broken stream is reopened after the
// reconnect delay.
func (c *Client) Watch(ctx context.Context, doc *document.Document) error {
	att, err := c.attachment(doc.Key())
	if err != nil {
		return err
	}
	att.Lock()
	if att.cancelWatch != nil {
		att.Unlock()
		return errors.Wrap(ErrAlreadyWatching, doc.Key())
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	att.cancelWatch, att.watchDone = cancel, done
	att.Unlock()

	go func() {
		defer close(done)
		c.runWatch(ctx, att)
	}()
	return nil
}

func (c *Client) runWatch(ctx context.Context, att *Attachment) {
	key := att.doc.Key()
	logger := log.With(c.logger, "document", key)
	b := backoff.WithContext(backoff.NewConstantBackOff(c.reconnectDelay), ctx)
	connected := false

	err := backoff.RetryNotify(func() error {
		if connected {
			c.metrics.WatchReconnects.Add(1)
		}
		if _, ok := c.Attachment(key); !ok {
			return backoff.Permanent(ErrDocumentNotAttached)
		}
		stream, err := c.transport.Watch(ctx, c.ID().String(), key)
		if err != nil {
			return err
		}
		defer stream.Close()
		connected = true
		level.Debug(logger).Log("msg", "watch stream opened")

		for {
			resp, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return err
			}
			c.handleWatchResponse(ctx, att, resp)
		}
	}, b, func(err error, d time.Duration) {
		level.Warn(logger).Log("msg", "watch stream broken", "err", err, "retry_in", d)
	})
	level.Debug(logger).Log("msg", "watch stopped", "err", err)
}

func (c *Client) handleWatchResponse(ctx context.Context, att *Attachment, resp document.WatchResponse) {
	if resp.Type == document.DocumentChanged {
		if resp.Publisher == c.ID().String() {
			return
		}
		if err := c.syncAttachment(ctx, att, false); err != nil {
			level.Warn(c.logger).Log("msg", "failed to sync changed document", "document", att.doc.Key(), "err", err)
		}
		return
	}
	att.Lock()
	defer att.Unlock()
	att.doc.ApplyWatchStream(resp)
}
