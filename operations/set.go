package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Set binds a value to a key of an object.
type Set struct {
	base
	key   string
	value crdt.Element
}

// NewSet creates a Set operation. The value is copied when executed.
func NewSet(parentCreatedAt *ticket.Ticket, key string, value crdt.Element, executedAt *ticket.Ticket) *Set {
	return &Set{
		base:  base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		key:   key,
		value: value,
	}
}

// Key returns the key to set.
func (o *Set) Key() string { return o.key }

// Value returns the value to set.
func (o *Set) Value() crdt.Element { return o.value }

// Execute sets the value. The reverse operation restores the previous value, or removes
// the key if it had none.
func (o *Set) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	obj, err := findParent[*crdt.Object](root, o.parentCreatedAt)
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
	reverse, err := o.reverse(obj.Get(o.key), value)
	if err != nil {
		return nil, nil, err
	}

	for _, removed := range obj.Set(o.key, value, o.executedAt) {
		root.RegisterRemovedElement(removed)
	}
	root.RegisterElement(value, obj)

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return []OpInfo{{
		Type:  OpSet,
		Path:  path,
		Key:   o.key,
		Value: value.Marshal(),
	}}, reverse, nil
}

func (o *Set) reverse(previous, value crdt.Element) (Operation, error) {
	if previous == nil {
		return NewRemove(o.parentCreatedAt, value.CreatedAt(), nil), nil
	}
	copied, err := previous.DeepCopy()
	if err != nil {
		return nil, err
	}
	return NewSet(o.parentCreatedAt, o.key, copied, nil), nil
}

// RenewValue recreates the value with fresh tickets, the first of them becoming the
// execution ticket. Values restored by undo and redo need new identities, since their
// old ones may still be in the document as tombstones.
func (o *Set) RenewValue(issue func() *ticket.Ticket) error {
	o.executedAt = issue()
	value, err := crdt.Renew(o.value, o.executedAt, issue)
	if err != nil {
		return err
	}
	o.value = value
	return nil
}
