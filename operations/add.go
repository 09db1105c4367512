package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Add inserts a value into an array, after the element created at prevCreatedAt.
type Add struct {
	base
	prevCreatedAt *ticket.Ticket
	value         crdt.Element
}

// NewAdd creates an Add operation. The value is copied when executed.
func NewAdd(parentCreatedAt, prevCreatedAt *ticket.Ticket, value crdt.Element, executedAt *ticket.Ticket) *Add {
	return &Add{
		base:          base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		prevCreatedAt: prevCreatedAt,
		value:         value,
	}
}

// PrevCreatedAt returns the element the value is inserted after.
func (o *Add) PrevCreatedAt() *ticket.Ticket { return o.prevCreatedAt }

// Value returns the value to insert.
func (o *Add) Value() crdt.Element { return o.value }

// Execute inserts the value.
func (o *Add) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	arr, err := findParent[*crdt.Array](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	value, err := o.value.DeepCopy()
	if err != nil {
		return nil, nil, err
	}
	if err := arr.InsertAfter(o.prevCreatedAt, value, o.executedAt); err != nil {
		return nil, nil, err
	}
	root.RegisterElement(value, arr)

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	index, _ := arr.IndexOf(value.CreatedAt())
	return []OpInfo{{
		Type:  OpAdd,
		Path:  path,
		Index: index,
		Value: value.Marshal(),
	}}, nil, nil
}
