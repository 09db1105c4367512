package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/index"
	"github.com/brunokim/causal-doc/ticket"
)

func mockActorID(last byte) ticket.ActorID {
	var id ticket.ActorID
	id[ticket.ActorIDSize-1] = last
	return id
}

// clock issues tickets for one replica, like a change context would.
type clock struct {
	actor   ticket.ActorID
	lamport int64
}

func newClock(last byte) *clock {
	return &clock{actor: mockActorID(last)}
}

func (c *clock) tick() *ticket.Ticket {
	c.lamport++
	return ticket.New(c.lamport, 0, c.actor)
}

// sync advances the clock past a ticket received from another replica.
func (c *clock) sync(t *ticket.Ticket) {
	if t.Lamport() > c.lamport {
		c.lamport = t.Lamport()
	}
}

func prim(t testing.TB, value interface{}, createdAt *ticket.Ticket) *crdt.Primitive {
	t.Helper()
	p, err := crdt.NewPrimitive(value, createdAt)
	require.NoError(t, err)
	return p
}

func newText() *crdt.Text {
	return crdt.NewText(crdt.NewRGATreeSplit(), ticket.InitialTicket)
}

func newTree() *crdt.Tree {
	root := crdt.NewTreeNode(crdt.NewTreeNodeID(ticket.InitialTicket, 0), "root", nil)
	return crdt.NewTree(root, ticket.InitialTicket)
}

// treeSizes returns the size kept by tree and the size recomputed from its live nodes.
func treeSizes(tree *crdt.Tree) (int, int) {
	size := tree.Size()
	return size, tree.Root().Index.UpdateDescendantsSize() - index.ElementPaddingSize
}

func element(typ string, createdAt *ticket.Ticket) *crdt.TreeNode {
	return crdt.NewTreeNode(crdt.NewTreeNodeID(createdAt, 0), typ, nil)
}

func textNode(value string, createdAt *ticket.Ticket) *crdt.TreeNode {
	return crdt.NewTreeNode(crdt.NewTreeNodeID(createdAt, 0), "text", nil, value)
}
