/*
Package change groups operations into changes, the unit exchanged between replicas.

A Change is made by one update of a document, inside a Context that issues its tickets.
Changes travel in a Pack, together with the Checkpoint that tells which changes each
side has already seen.
*/
package change

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/ticket"
)

// Change is a list of operations made by one update, plus an optional change of the
// author's presence.
type Change struct {
	id             ID
	message        string
	operations     []operations.Operation
	presenceChange *presence.Change
}

// New creates a change.
func New(id ID, message string, ops []operations.Operation, presenceChange *presence.Change) *Change {
	return &Change{
		id:             id,
		message:        message,
		operations:     ops,
		presenceChange: presenceChange,
	}
}

// Execute applies the change to root and presences. Returns what changed and the
// operations that revert it, in the order they must run.
func (c *Change) Execute(root *crdt.Root, presences *presence.Map, source operations.Source) ([]operations.OpInfo, []operations.Operation, error) {
	var infos []operations.OpInfo
	var reverseOps []operations.Operation
	for _, op := range c.operations {
		opInfos, reverse, err := op.Execute(root, source)
		if err != nil {
			return nil, nil, err
		}
		infos = append(infos, opInfos...)
		if reverse != nil {
			reverseOps = append([]operations.Operation{reverse}, reverseOps...)
		}
	}

	if c.presenceChange != nil && presences != nil {
		actor := c.id.ActorID().String()
		switch c.presenceChange.Type {
		case presence.Put:
			presences.Store(actor, c.presenceChange.Presence.DeepCopy())
		case presence.Clear:
			presences.Delete(actor)
		}
	}
	return infos, reverseOps, nil
}

func (c *Change) ID() ID                             { return c.id }
func (c *Change) Message() string                    { return c.message }
func (c *Change) Operations() []operations.Operation { return c.operations }
func (c *Change) PresenceChange() *presence.Change   { return c.presenceChange }
func (c *Change) ClientSeq() uint32                  { return c.id.ClientSeq() }
func (c *Change) ServerSeq() int64                   { return c.id.ServerSeq() }

// SetServerSeq sets the sequence assigned by the server.
func (c *Change) SetServerSeq(serverSeq int64) {
	c.id = c.id.SetServerSeq(serverSeq)
}

// SetActor sets the author of the change and of its operations.
func (c *Change) SetActor(actorID ticket.ActorID) {
	c.id = c.id.SetActor(actorID)
	for _, op := range c.operations {
		op.SetActor(actorID)
	}
}
