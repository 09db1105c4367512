package operations

import (
	"fmt"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Remove deletes an element from an object or array.
type Remove struct {
	base
	createdAt *ticket.Ticket
}

// NewRemove creates a Remove operation of the element created at createdAt.
func NewRemove(parentCreatedAt, createdAt, executedAt *ticket.Ticket) *Remove {
	return &Remove{
		base:      base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		createdAt: createdAt,
	}
}

// CreatedAt returns the creation time of the element to remove.
func (o *Remove) CreatedAt() *ticket.Ticket { return o.createdAt }

// ReconcileCreatedAt retargets the operation, and its parent, from prev to curr.
func (o *Remove) ReconcileCreatedAt(prev, curr *ticket.Ticket) {
	o.base.ReconcileCreatedAt(prev, curr)
	if o.createdAt.Equal(prev) {
		o.createdAt = curr
	}
}

// Execute removes the element. Removing an object member returns the Set that brings its
// value back; array elements can't be restored.
func (o *Remove) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	parent, err := findParent[crdt.Container](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.createdAt) {
		return nil, nil, nil
	}

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	info := OpInfo{Type: OpRemove, Path: path}
	var reverse Operation
	var wasAlive bool
	switch parent := parent.(type) {
	case *crdt.Object:
		key, _ := parent.SubPathOf(o.createdAt)
		info.Key = key
		if elem := parent.GetByCreatedAt(o.createdAt); elem != nil && !elem.IsRemoved() {
			wasAlive = true
			value, err := elem.DeepCopy()
			if err != nil {
				return nil, nil, err
			}
			reverse = NewSet(o.parentCreatedAt, key, value, nil)
		}
	case *crdt.Array:
		elem := parent.GetByCreatedAt(o.createdAt)
		wasAlive = elem != nil && !elem.IsRemoved()
		info.Index, _ = parent.IndexOf(o.createdAt)
	default:
		return nil, nil, fmt.Errorf("remove from %T: %w", parent, ErrNotApplicableDataType)
	}

	elem, err := parent.DeleteByCreatedAt(o.createdAt, o.executedAt)
	if err != nil {
		return nil, nil, err
	}
	if elem == nil {
		return nil, nil, nil
	}
	root.RegisterRemovedElement(elem)
	if !wasAlive {
		return nil, nil, nil
	}
	return []OpInfo{info}, reverse, nil
}
