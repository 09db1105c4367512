/*
Package operations implements the operations that change a document.

Each operation targets a container by creation time and carries the ticket it was
executed at, so that applying it on any replica, in any causally consistent order, gives
the same result. Operations are executed against a crdt.Root, registering the elements
they create and the tombstones they leave, and report what they did as OpInfo values.
Some of them also return the operation that reverts their effect, for undo.
*/
package operations

import (
	"errors"
	"fmt"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

var (
	// ErrNotFound is returned when the target of an operation is not in the document.
	ErrNotFound = errors.New("element not found")
	// ErrNotApplicableDataType is returned when the target has the wrong type.
	ErrNotApplicableDataType = errors.New("not applicable data type")
)

// Source tells where an operation comes from.
type Source int

const (
	// SourceLocal is an operation made by this replica.
	SourceLocal Source = iota
	// SourceRemote is an operation received from another replica.
	SourceRemote
	// SourceUndoRedo is an operation made by undoing or redoing.
	SourceUndoRedo
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	case SourceUndoRedo:
		return "undoredo"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Operation is a change to one container of the document.
type Operation interface {
	// Execute applies the operation to root. Returns what changed and, for operations
	// that can be reverted, the reverse operation.
	Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error)
	// ParentCreatedAt is the creation time of the target container.
	ParentCreatedAt() *ticket.Ticket
	ExecutedAt() *ticket.Ticket
	SetExecutedAt(executedAt *ticket.Ticket)
	// SetActor sets the actor of the execution ticket, once the replica has one.
	SetActor(actorID ticket.ActorID)
	// ReconcileCreatedAt retargets the operation from an element that undo or redo
	// recreated at curr.
	ReconcileCreatedAt(prev, curr *ticket.Ticket)
}

// OpType is the kind of an OpInfo.
type OpType string

const (
	OpSet       OpType = "set"
	OpAdd       OpType = "add"
	OpMove      OpType = "move"
	OpRemove    OpType = "remove"
	OpEdit      OpType = "edit"
	OpStyle     OpType = "style"
	OpIncrease  OpType = "increase"
	OpTreeEdit  OpType = "tree-edit"
	OpTreeStyle OpType = "tree-style"
)

// OpInfo describes the effect of an operation on the document, for subscribers. Path
// is the JSON path of the target container; which other fields are set depends on Type.
type OpInfo struct {
	Type OpType
	Path string

	// Key is the member of an object, for set and remove.
	Key string
	// Index is the position in an array, for add, move and remove.
	Index         int
	PreviousIndex int

	// From and To are the range of an edit or style, in a text or a tree.
	From     int
	To       int
	FromPath []int
	ToPath   []int

	// Value is the JSON of a new value, the content of a text edit, or the increment.
	Value      string
	Attributes map[string]string
	// AttributesToRemove are the attribute keys removed by a tree style.
	AttributesToRemove []string
	// TreeNodes are the contents inserted by a tree edit.
	TreeNodes  []*crdt.TreeNode
	SplitLevel int
}

type base struct {
	parentCreatedAt *ticket.Ticket
	executedAt      *ticket.Ticket
}

func (o *base) ParentCreatedAt() *ticket.Ticket {
	return o.parentCreatedAt
}

func (o *base) ExecutedAt() *ticket.Ticket {
	return o.executedAt
}

func (o *base) SetExecutedAt(executedAt *ticket.Ticket) {
	o.executedAt = executedAt
}

func (o *base) SetActor(actorID ticket.ActorID) {
	o.executedAt = o.executedAt.SetActorID(actorID)
}

func (o *base) ReconcileCreatedAt(prev, curr *ticket.Ticket) {
	if o.parentCreatedAt.Equal(prev) {
		o.parentCreatedAt = curr
	}
}

// findParent returns the target container of an operation with the expected type.
func findParent[T crdt.Element](root *crdt.Root, createdAt *ticket.Ticket) (T, error) {
	var zero T
	elem := root.FindByCreatedAt(createdAt)
	if elem == nil {
		return zero, fmt.Errorf("%s: %w", createdAt.ToTestString(), ErrNotFound)
	}
	parent, ok := elem.(T)
	if !ok {
		return zero, fmt.Errorf("%T %s: %w", elem, createdAt.ToTestString(), ErrNotApplicableDataType)
	}
	return parent, nil
}

// isRemoved returns whether the element created at createdAt, or any of its ancestors,
// is removed or was already purged.
func isRemoved(root *crdt.Root, createdAt *ticket.Ticket) bool {
	pair, ok := root.FindElementPair(createdAt)
	for ok {
		if pair.Element.IsRemoved() {
			return true
		}
		if pair.Parent == nil {
			return false
		}
		pair, ok = root.FindElementPair(pair.Parent.CreatedAt())
	}
	return true
}

// skipUndoRedo returns whether an undo or redo can't apply anymore, because its target
// was removed in the meantime.
func skipUndoRedo(root *crdt.Root, source Source, createdAt *ticket.Ticket) bool {
	return source == SourceUndoRedo && isRemoved(root, createdAt)
}
