/*
Package document is the client-side replica of a collaborative JSON document.

Local updates run against a working copy through proxy handles, and are recorded as
changes applied to the document right away. Changes from other clients arrive in change
packs from the server, which also tells how far every client has synchronized, so that
tombstones nobody can reference anymore are purged.

	doc := document.New("notes")
	err := doc.Update(func(root *proxy.Object, p *presence.Presence) error {
		return root.Set("title", "groceries")
	}, "set title")
	pack := doc.CreateChangePack() // sent to the server

A Document is not safe for concurrent use; callers serialize access to it.
*/
package document

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/converter"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/proxy"
	"github.com/brunokim/causal-doc/ticket"
)

var (
	// ErrDocumentRemoved is returned when changing a removed document.
	ErrDocumentRemoved = errors.New("document is removed")
	// ErrNothingToUndo is returned by Undo with an empty undo stack.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned by Redo with an empty redo stack.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrUndoDuringUpdate is returned by Undo and Redo called from an updater.
	ErrUndoDuringUpdate = errors.New("undo or redo during an update")
	// ErrNestedUpdate is returned by Update called from an updater.
	ErrNestedUpdate = errors.New("update during an update")
)

// Status is the relation of a document with the server.
type Status int

const (
	// Detached documents are only changed locally.
	Detached Status = iota
	// Attached documents are synchronized with the server.
	Attached
	// Removed documents were deleted from the server and can't change anymore.
	Removed
)

func (s Status) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger of the document.
func WithLogger(logger log.Logger) Option {
	return func(d *Document) { d.logger = logger }
}

// WithDisableGC keeps every tombstone, ignoring the tickets received from the server.
func WithDisableGC() Option {
	return func(d *Document) { d.disableGC = true }
}

// WithMaxUndoDepth bounds the undo and redo stacks, MaxUndoDepth by default.
func WithMaxUndoDepth(depth int) Option {
	return func(d *Document) { d.history.maxDepth = depth }
}

// Document is a replica of a collaborative document.
type Document struct {
	key        string
	status     Status
	changeID   change.ID
	checkpoint change.Checkpoint

	// localChanges were applied here but not yet acknowledged by the server.
	localChanges []*change.Change

	root      *crdt.Root
	presences *presence.Map
	// clone and clonePresences are the working copy updates run against, equal to the
	// document between updates. Nil until the first update, or after a failed one.
	clone          *crdt.Root
	clonePresences *presence.Map

	// onlineClients are the other clients watching the document.
	onlineClients mapset.Set[string]
	history       *History
	subs          *subscribers

	logger    log.Logger
	disableGC bool
	// isUpdating is set while an updater runs.
	isUpdating bool
}

// New creates an empty detached document.
func New(key string, opts ...Option) *Document {
	d := &Document{
		key:           key,
		status:        Detached,
		changeID:      change.InitialID,
		checkpoint:    change.InitialCheckpoint,
		root:          crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)),
		presences:     presence.NewMap(),
		onlineClients: mapset.NewSet[string](),
		subs:          &subscribers{},
		logger:        log.NewNopLogger(),
	}
	d.history = &History{doc: d, maxDepth: MaxUndoDepth}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.With(d.logger, "document", key)
	return d
}

// Key returns the key of the document.
func (d *Document) Key() string {
	return d.key
}

// Status returns the status of the document.
func (d *Document) Status() Status {
	return d.status
}

// SetStatus changes the status and notifies subscribers.
func (d *Document) SetStatus(status Status) {
	if d.status == status {
		return
	}
	d.status = status
	d.publish(Event{Type: StatusChanged, Status: status})
}

// IsAttached returns whether the document is attached.
func (d *Document) IsAttached() bool {
	return d.status == Attached
}

// ActorID returns the actor of local changes.
func (d *Document) ActorID() ticket.ActorID {
	return d.changeID.ActorID()
}

// SetActor sets the actor of local changes, including those not yet pushed. Called when
// the client is activated and receives its ID.
func (d *Document) SetActor(actorID ticket.ActorID) {
	for _, c := range d.localChanges {
		c.SetActor(actorID)
	}
	d.changeID = d.changeID.SetActor(actorID)
}

// Checkpoint returns how far the document is synchronized.
func (d *Document) Checkpoint() change.Checkpoint {
	return d.checkpoint
}

// HasLocalChanges returns whether there are changes not yet acknowledged by the server.
func (d *Document) HasLocalChanges() bool {
	return len(d.localChanges) > 0
}

// Root returns a read-only handle to the root object. Changes must go through Update.
func (d *Document) Root() *proxy.Object {
	return proxy.NewObject(nil, d.root.Object())
}

// Marshal returns the JSON of the document.
func (d *Document) Marshal() string {
	return d.root.Object().Marshal()
}

// SortedMarshal returns the JSON of the document with object keys sorted.
func (d *Document) SortedMarshal() string {
	return crdt.SortedMarshal(d.root.Object())
}

// GarbageLen returns the number of tombstones that may be purged.
func (d *Document) GarbageLen() int {
	return d.root.GarbageLen()
}

// Subscribe calls fn for each event matching target, until the returned function is
// called. An empty target receives every event, PresenceTarget only presence events, and
// a path such as "$.todos" only the changes to that element or its descendants.
func (d *Document) Subscribe(target string, fn func(Event)) (unsubscribe func()) {
	return d.subs.add(target, fn)
}

func (d *Document) publish(event Event) {
	d.subs.publish(event)
}

func (d *Document) ensureClone() error {
	if d.clone != nil {
		return nil
	}
	clone, err := d.root.DeepCopy()
	if err != nil {
		return err
	}
	d.clone = clone
	d.clonePresences = d.presences.DeepCopy()
	return nil
}

func (d *Document) resetClone() {
	d.clone = nil
	d.clonePresences = nil
}

func (d *Document) runUpdater(updater func(*proxy.Object, *presence.Presence) error, root *proxy.Object, p *presence.Presence) error {
	d.isUpdating = true
	defer func() { d.isUpdating = false }()
	return updater(root, p)
}

// Update runs updater against the working copy and records what it changes as a local
// change. If updater fails, nothing changes.
func (d *Document) Update(updater func(root *proxy.Object, p *presence.Presence) error, message string) error {
	if d.status == Removed {
		return ErrDocumentRemoved
	}
	if d.isUpdating {
		return ErrNestedUpdate
	}
	if err := d.ensureClone(); err != nil {
		return err
	}
	ctx := change.NewContext(d.changeID.Next(), message, d.clone)
	actor := d.changeID.ActorID().String()
	data, _ := d.clonePresences.Load(actor)
	p := presence.New(data.DeepCopy())

	if err := d.runUpdater(updater, proxy.NewObject(ctx, d.clone.Object()), p); err != nil {
		d.resetClone()
		return err
	}
	if pc := p.Change(); pc != nil {
		ctx.SetPresenceChange(*pc)
	}
	if !ctx.HasChange() {
		return nil
	}

	c := ctx.ToChange()
	infos, reverseOps, err := d.applyLocalChange(c, operations.SourceLocal)
	if err != nil {
		return err
	}
	if len(reverseOps) > 0 || p.ReversePatch() != nil {
		d.history.pushUndo(historyEntry{ops: reverseOps, presence: p.ReversePatch()})
		d.history.clearRedo()
	}
	d.publishLocal(c, infos)
	return nil
}

// applyLocalChange applies a change already applied to the working copy.
func (d *Document) applyLocalChange(c *change.Change, source operations.Source) ([]operations.OpInfo, []operations.Operation, error) {
	if pc := c.PresenceChange(); pc != nil {
		applyPresenceChange(d.clonePresences, c.ID().ActorID().String(), pc)
	}
	infos, reverseOps, err := c.Execute(d.root, d.presences, source)
	if err != nil {
		d.resetClone()
		return nil, nil, err
	}
	d.localChanges = append(d.localChanges, c)
	d.changeID = c.ID()
	level.Debug(d.logger).Log("msg", "applied local change", "change", c.ID(), "ops", len(c.Operations()))
	return infos, reverseOps, nil
}

func (d *Document) publishLocal(c *change.Change, infos []operations.OpInfo) {
	actor := c.ID().ActorID().String()
	if len(infos) > 0 {
		d.publish(Event{Type: LocalChange, Actor: actor, Message: c.Message(), OpInfos: infos})
	}
	if pc := c.PresenceChange(); pc != nil && pc.Type == presence.Put && d.IsAttached() {
		d.publish(Event{Type: PresenceChanged, Actor: actor, Presence: pc.Presence.DeepCopy()})
	}
}

func applyPresenceChange(presences *presence.Map, actor string, pc *presence.Change) {
	switch pc.Type {
	case presence.Put:
		presences.Store(actor, pc.Presence.DeepCopy())
	case presence.Clear:
		presences.Delete(actor)
	}
}

// CreateChangePack returns the local changes to push to the server, with the checkpoint
// the server will reach after storing them.
func (d *Document) CreateChangePack() *change.Pack {
	changes := append([]*change.Change(nil), d.localChanges...)
	cp := d.checkpoint.IncreaseClientSeq(uint32(len(changes)))
	return change.NewPack(d.key, cp, changes, nil)
}

// ApplyChangePack applies the response of the server to a push: the changes of other
// clients or a snapshot, and the acknowledgment of local changes. Tombstones older than
// the minimum synced ticket are purged, and the document is removed if the server says
// so.
func (d *Document) ApplyChangePack(pack *change.Pack) error {
	if len(pack.Snapshot) > 0 {
		if err := d.applySnapshot(pack.Checkpoint, pack.Snapshot); err != nil {
			return err
		}
	} else if n, err := d.applyChanges(pack.Changes); err != nil {
		// The next pull resumes at the failed change, so that the applied ones are not
		// replayed.
		if n > 0 {
			d.checkpoint = d.checkpoint.Forward(change.NewCheckpoint(pack.Changes[n-1].ServerSeq(), 0))
		}
		return err
	}

	for len(d.localChanges) > 0 && d.localChanges[0].ClientSeq() <= pack.Checkpoint.ClientSeq {
		d.localChanges = d.localChanges[1:]
	}
	d.checkpoint = d.checkpoint.Forward(pack.Checkpoint)

	if pack.MinSyncedTicket != nil {
		if _, err := d.GarbageCollect(pack.MinSyncedTicket); err != nil {
			return err
		}
	}
	if pack.IsRemoved {
		d.SetStatus(Removed)
	}
	level.Debug(d.logger).Log(
		"msg", "applied change pack",
		"changes", len(pack.Changes),
		"snapshot", len(pack.Snapshot) > 0,
		"checkpoint", d.checkpoint,
		"pending", len(d.localChanges),
	)
	return nil
}

// ApplyChanges applies changes of other clients, in order, stopping at the first that
// fails.
func (d *Document) ApplyChanges(changes []*change.Change) error {
	_, err := d.applyChanges(changes)
	return err
}

// applyChanges returns how many changes were applied.
func (d *Document) applyChanges(changes []*change.Change) (int, error) {
	for i, c := range changes {
		if d.clone != nil {
			if _, _, err := c.Execute(d.clone, d.clonePresences, operations.SourceRemote); err != nil {
				d.resetClone()
			}
		}

		actor := c.ID().ActorID().String()
		_, hadPresence := d.presences.Load(actor)
		infos, _, err := c.Execute(d.root, d.presences, operations.SourceRemote)
		if err != nil {
			d.resetClone()
			return i, fmt.Errorf("apply change %s: %w", c.ID(), err)
		}
		d.changeID = d.changeID.SyncLamport(c.ID().Lamport())

		if len(infos) > 0 {
			d.publish(Event{Type: RemoteChange, Actor: actor, Message: c.Message(), OpInfos: infos})
		}
		if pc := c.PresenceChange(); pc != nil {
			d.publishRemotePresence(actor, pc, hadPresence)
		}
	}
	return len(changes), nil
}

// publishRemotePresence notifies the presence change of an online client. The first
// presence of a client already watching means it just finished attaching.
func (d *Document) publishRemotePresence(actor string, pc *presence.Change, hadPresence bool) {
	if !d.onlineClients.Contains(actor) {
		return
	}
	switch pc.Type {
	case presence.Put:
		eventType := PresenceChanged
		if !hadPresence {
			eventType = Watched
		}
		d.publish(Event{Type: eventType, Actor: actor, Presence: pc.Presence.DeepCopy()})
	case presence.Clear:
		d.onlineClients.Remove(actor)
		d.publish(Event{Type: Unwatched, Actor: actor})
	}
}

// applySnapshot replaces the document with a snapshot, then applies on top of it the
// local changes the server hadn't seen.
func (d *Document) applySnapshot(cp change.Checkpoint, bs []byte) error {
	snapshot, err := converter.BytesToSnapshot(bs)
	if err != nil {
		return err
	}
	d.root = snapshot.Root
	d.presences = snapshot.Presences
	d.resetClone()
	d.changeID = d.changeID.SyncLamport(snapshot.Lamport)

	for _, c := range d.localChanges {
		if c.ClientSeq() <= cp.ClientSeq {
			continue
		}
		if _, _, err := c.Execute(d.root, d.presences, operations.SourceLocal); err != nil {
			return fmt.Errorf("reapply change %s: %w", c.ID(), err)
		}
	}
	d.publish(Event{Type: Snapshot})
	return nil
}

// GarbageCollect purges the tombstones removed before t, returning how many nodes were
// purged. Does nothing if garbage collection is disabled.
func (d *Document) GarbageCollect(t *ticket.Ticket) (int, error) {
	if d.disableGC {
		return 0, nil
	}
	if d.clone != nil {
		if _, err := d.clone.GarbageCollect(t); err != nil {
			d.resetClone()
		}
	}
	n, err := d.root.GarbageCollect(t)
	if err != nil {
		return n, err
	}
	if n > 0 {
		level.Debug(d.logger).Log("msg", "collected garbage", "purged", n, "ticket", t)
	}
	return n, nil
}

// ToSnapshot encodes the document with its tombstones and presences.
func (d *Document) ToSnapshot() ([]byte, error) {
	return converter.SnapshotToBytes(d.root, d.presences, d.changeID.Lamport())
}

// History returns the undo and redo stacks of the document.
func (d *Document) History() *History {
	return d.history
}
