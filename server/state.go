package server

import (
	"sort"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/api"
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/document"
	"github.com/brunokim/causal-doc/ticket"
)

var newActorID = randomActorID // For testing

func randomActorID() ticket.ActorID {
	id := uuid.New()
	var actor ticket.ActorID
	copy(actor[:], id[:ticket.ActorIDSize])
	return actor
}

type clientInfo struct {
	id        string
	key       string
	activated bool
	// docs are the attached documents, by key.
	docs map[string]*attachedDoc
}

// attachedDoc is how far a client has synchronized a document.
type attachedDoc struct {
	// clientSeq is the last change of the client stored by the server.
	clientSeq uint32
	// serverSeq is the last change pulled by the client.
	serverSeq int64
}

type docInfo struct {
	key string
	// changes holds every change, the one with server sequence i at index i-1.
	changes []*change.Change
	// replica applies every change, to build snapshots.
	replica *document.Document
	removed bool
}

func (d *docInfo) lastServerSeq() int64 {
	return int64(len(d.changes))
}

// state is everything the server knows. It is guarded by its lock.
type state struct {
	sync.Mutex

	clients      map[string]*clientInfo
	clientsByKey map[string]*clientInfo
	docs         map[string]*docInfo
	// watchers counts the open watch streams of each client, by document key.
	watchers map[string]map[string]int

	snapshotThreshold int
	logger            log.Logger
	metrics           *Metrics
}

func newState(snapshotThreshold int, logger log.Logger, metrics *Metrics) *state {
	return &state{
		clients:           make(map[string]*clientInfo),
		clientsByKey:      make(map[string]*clientInfo),
		docs:              make(map[string]*docInfo),
		watchers:          make(map[string]map[string]int),
		snapshotThreshold: snapshotThreshold,
		logger:            logger,
		metrics:           metrics,
	}
}

// activate returns the ID of the client with key, creating it if needed.
func (s *state) activate(key string) string {
	s.Lock()
	defer s.Unlock()
	c, ok := s.clientsByKey[key]
	if !ok {
		c = &clientInfo{
			id:   newActorID().String(),
			key:  key,
			docs: make(map[string]*attachedDoc),
		}
		s.clients[c.id] = c
		s.clientsByKey[key] = c
	}
	c.activated = true
	level.Debug(s.logger).Log("msg", "activated client", "key", key, "client", c.id)
	return c.id
}

func (s *state) deactivate(clientID string) error {
	s.Lock()
	defer s.Unlock()
	c, err := s.activeClient(clientID)
	if err != nil {
		return err
	}
	c.activated = false
	c.docs = make(map[string]*attachedDoc)
	level.Debug(s.logger).Log("msg", "deactivated client", "client", clientID)
	return nil
}

func (s *state) activeClient(clientID string) (*clientInfo, error) {
	c, ok := s.clients[clientID]
	if !ok {
		return nil, errors.Wrap(api.ErrClientNotFound, clientID)
	}
	if !c.activated {
		return nil, errors.Wrap(api.ErrClientNotActivated, clientID)
	}
	return c, nil
}

// attachment returns a client and one of its attached documents.
func (s *state) attachment(clientID, key string) (*clientInfo, *attachedDoc, *docInfo, error) {
	c, err := s.activeClient(clientID)
	if err != nil {
		return nil, nil, nil, err
	}
	ad, ok := c.docs[key]
	if !ok {
		return nil, nil, nil, errors.Wrapf(api.ErrDocumentNotAttached, "%s to %s", key, clientID)
	}
	return c, ad, s.docs[key], nil
}

func (s *state) checkAttached(clientID, key string) error {
	s.Lock()
	defer s.Unlock()
	_, _, _, err := s.attachment(clientID, key)
	return err
}

func (s *state) attach(clientID string, pack *change.Pack) (*change.Pack, int, error) {
	s.Lock()
	defer s.Unlock()
	c, err := s.activeClient(clientID)
	if err != nil {
		return nil, 0, err
	}
	doc, ok := s.docs[pack.DocumentKey]
	if !ok {
		replica := document.New(pack.DocumentKey, document.WithLogger(s.logger))
		replica.SetStatus(document.Attached)
		doc = &docInfo{key: pack.DocumentKey, replica: replica}
		s.docs[doc.key] = doc
	}
	if doc.removed {
		return nil, 0, errors.Wrap(api.ErrDocumentRemoved, doc.key)
	}
	ad, ok := c.docs[doc.key]
	if !ok {
		ad = &attachedDoc{}
		c.docs[doc.key] = ad
	}
	return s.pushPull(c, ad, doc, pack, false)
}

func (s *state) detach(clientID string, pack *change.Pack, removeIfNotAttached bool) (*change.Pack, int, error) {
	s.Lock()
	defer s.Unlock()
	c, ad, doc, err := s.attachment(clientID, pack.DocumentKey)
	if err != nil {
		return nil, 0, err
	}
	if doc.removed {
		delete(c.docs, doc.key)
		return removedPack(doc, pack), 0, nil
	}
	resp, pushed, err := s.pushPull(c, ad, doc, pack, false)
	if err != nil {
		return nil, 0, err
	}
	delete(c.docs, doc.key)
	if removeIfNotAttached && !s.isAttachedByAnyone(doc.key) {
		doc.removed = true
		resp.IsRemoved = true
	}
	return resp, pushed, nil
}

func (s *state) remove(clientID string, pack *change.Pack) (*change.Pack, int, error) {
	s.Lock()
	defer s.Unlock()
	c, ad, doc, err := s.attachment(clientID, pack.DocumentKey)
	if err != nil {
		return nil, 0, err
	}
	if doc.removed {
		delete(c.docs, doc.key)
		return removedPack(doc, pack), 0, nil
	}
	resp, pushed, err := s.pushPull(c, ad, doc, pack, false)
	if err != nil {
		return nil, 0, err
	}
	delete(c.docs, doc.key)
	doc.removed = true
	resp.IsRemoved = true
	level.Debug(s.logger).Log("msg", "removed document", "document", doc.key, "client", clientID)
	return resp, pushed, nil
}

func (s *state) pushPullRequest(clientID string, pack *change.Pack, pushOnly bool) (*change.Pack, int, error) {
	s.Lock()
	defer s.Unlock()
	c, ad, doc, err := s.attachment(clientID, pack.DocumentKey)
	if err != nil {
		return nil, 0, err
	}
	if doc.removed {
		return removedPack(doc, pack), 0, nil
	}
	return s.pushPull(c, ad, doc, pack, pushOnly)
}

// removedPack tells a client that a document was removed, without storing its changes.
func removedPack(doc *docInfo, pack *change.Pack) *change.Pack {
	resp := change.NewPack(doc.key, pack.Checkpoint, nil, nil)
	resp.IsRemoved = true
	return resp
}

func (s *state) isAttachedByAnyone(key string) bool {
	for _, c := range s.clients {
		if _, ok := c.docs[key]; ok && c.activated {
			return true
		}
	}
	return false
}

// pushPull stores the changes of the client it hadn't stored yet, and answers with the
// changes of other clients since the checkpoint of the pack, or a snapshot if there are
// too many of them. Returns the number of changes stored.
func (s *state) pushPull(c *clientInfo, ad *attachedDoc, doc *docInfo, pack *change.Pack, pushOnly bool) (*change.Pack, int, error) {
	if cp := pack.Checkpoint; cp.ServerSeq < 0 || cp.ServerSeq > doc.lastServerSeq() {
		return nil, 0, errors.Wrapf(api.ErrInvalidRequest, "checkpoint %s beyond %d", cp, doc.lastServerSeq())
	}
	for _, ch := range pack.Changes {
		if actor := ch.ID().ActorID().String(); actor != c.id {
			return nil, 0, errors.Wrapf(api.ErrInvalidRequest, "change %s pushed by %s", ch.ID(), c.id)
		}
	}
	var pushed []*change.Change
	for _, ch := range pack.Changes {
		if ch.ClientSeq() <= ad.clientSeq {
			continue
		}
		ch.SetServerSeq(doc.lastServerSeq() + 1)
		doc.changes = append(doc.changes, ch)
		pushed = append(pushed, ch)
		ad.clientSeq = ch.ClientSeq()
	}
	if err := doc.replica.ApplyChanges(pushed); err != nil {
		return nil, 0, errors.Wrapf(api.ErrInternal, "apply pushed changes to %s: %v", doc.key, err)
	}
	s.metrics.PushedChanges.Add(float64(len(pushed)))

	resp := change.NewPack(doc.key, change.NewCheckpoint(pack.Checkpoint.ServerSeq, ad.clientSeq), nil, nil)
	if !pushOnly {
		from := pack.Checkpoint.ServerSeq
		latest := doc.lastServerSeq()
		if latest-from > int64(s.snapshotThreshold) {
			snapshot, err := doc.replica.ToSnapshot()
			if err != nil {
				return nil, 0, errors.Wrapf(api.ErrInternal, "snapshot %s: %v", doc.key, err)
			}
			resp.Snapshot = snapshot
			s.metrics.Snapshots.Add(1)
		} else {
			for _, ch := range doc.changes[from:latest] {
				if ch.ID().ActorID().String() != c.id {
					resp.Changes = append(resp.Changes, ch)
				}
			}
			s.metrics.PulledChanges.Add(float64(len(resp.Changes)))
		}
		resp.Checkpoint = change.NewCheckpoint(latest, ad.clientSeq)
		ad.serverSeq = latest
	}

	resp.MinSyncedTicket = s.minSyncedTicket(doc)
	if resp.MinSyncedTicket != nil {
		if _, err := doc.replica.GarbageCollect(resp.MinSyncedTicket); err != nil {
			return nil, 0, errors.Wrapf(api.ErrInternal, "collect garbage of %s: %v", doc.key, err)
		}
	}
	level.Debug(s.logger).Log(
		"msg", "pushpull",
		"document", doc.key,
		"client", c.id,
		"pushed", len(pushed),
		"pulled", len(resp.Changes),
		"snapshot", len(resp.Snapshot) > 0,
		"checkpoint", resp.Checkpoint,
	)
	return resp, len(pushed), nil
}

// minSyncedTicket returns the ticket of the last change every attached client has
// pulled, or nil if some client has pulled nothing.
func (s *state) minSyncedTicket(doc *docInfo) *ticket.Ticket {
	minSeq := int64(-1)
	for _, c := range s.clients {
		ad, ok := c.docs[doc.key]
		if !ok || !c.activated {
			continue
		}
		if minSeq < 0 || ad.serverSeq < minSeq {
			minSeq = ad.serverSeq
		}
	}
	if minSeq <= 0 {
		return nil
	}
	id := doc.changes[minSeq-1].ID()
	return ticket.New(id.Lamport(), ticket.MaxDelimiter, id.ActorID())
}

// addWatcher registers a watch stream, returning the clients watching the document.
func (s *state) addWatcher(key, clientID string) []string {
	s.Lock()
	defer s.Unlock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[string]int)
	}
	s.watchers[key][clientID]++
	ids := make([]string, 0, len(s.watchers[key]))
	for id := range s.watchers[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// removeWatcher unregisters a watch stream, returning whether it was the last one of
// the client.
func (s *state) removeWatcher(key, clientID string) bool {
	s.Lock()
	defer s.Unlock()
	s.watchers[key][clientID]--
	if s.watchers[key][clientID] > 0 {
		return false
	}
	delete(s.watchers[key], clientID)
	if len(s.watchers[key]) == 0 {
		delete(s.watchers, key)
	}
	return true
}

// changesLen returns the number of changes stored for a document.
func (s *state) changesLen(key string) int {
	s.Lock()
	defer s.Unlock()
	if doc, ok := s.docs[key]; ok {
		return len(doc.changes)
	}
	return 0
}
