package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Move places an array element after the element created at prevCreatedAt. Concurrent
// moves of the same element resolve to the last one.
type Move struct {
	base
	prevCreatedAt *ticket.Ticket
	createdAt     *ticket.Ticket
}

// NewMove creates a Move operation.
func NewMove(parentCreatedAt, prevCreatedAt, createdAt, executedAt *ticket.Ticket) *Move {
	return &Move{
		base:          base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		prevCreatedAt: prevCreatedAt,
		createdAt:     createdAt,
	}
}

// PrevCreatedAt returns the element to move after.
func (o *Move) PrevCreatedAt() *ticket.Ticket { return o.prevCreatedAt }

// CreatedAt returns the element to move.
func (o *Move) CreatedAt() *ticket.Ticket { return o.createdAt }

// Execute moves the element.
func (o *Move) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	arr, err := findParent[*crdt.Array](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.createdAt) {
		return nil, nil, nil
	}

	previousIndex, _ := arr.IndexOf(o.createdAt)
	if err := arr.MoveAfter(o.prevCreatedAt, o.createdAt, o.executedAt); err != nil {
		return nil, nil, err
	}

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	index, _ := arr.IndexOf(o.createdAt)
	return []OpInfo{{
		Type:          OpMove,
		Path:          path,
		Index:         index,
		PreviousIndex: previousIndex,
	}}, nil, nil
}
