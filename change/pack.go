package change

import (
	"github.com/brunokim/causal-doc/ticket"
)

// Pack is what a client and the server exchange to synchronize a document: the changes
// the receiver hasn't seen, or a snapshot when there are too many of them.
type Pack struct {
	DocumentKey string
	Checkpoint  Checkpoint
	Changes     []*Change
	// Snapshot is the encoded document, replacing its state and local history.
	Snapshot []byte
	// MinSyncedTicket is the newest ticket every client of the document has seen.
	// Tombstones removed before it can be purged.
	MinSyncedTicket *ticket.Ticket
	IsRemoved       bool
}

// NewPack creates a pack.
func NewPack(key string, cp Checkpoint, changes []*Change, snapshot []byte) *Pack {
	return &Pack{
		DocumentKey: key,
		Checkpoint:  cp,
		Changes:     changes,
		Snapshot:    snapshot,
	}
}

// HasChanges returns whether the pack has changes.
func (p *Pack) HasChanges() bool {
	return len(p.Changes) > 0
}

// ChangesLen returns the number of changes.
func (p *Pack) ChangesLen() int {
	return len(p.Changes)
}

// OperationsLen returns the number of operations of every change.
func (p *Pack) OperationsLen() int {
	n := 0
	for _, c := range p.Changes {
		n += len(c.Operations())
	}
	return n
}
