package operations

import (
	"fmt"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Increase adds a number to a counter.
type Increase struct {
	base
	value *crdt.Primitive
}

// NewIncrease creates an Increase operation by a numeric primitive.
func NewIncrease(parentCreatedAt *ticket.Ticket, value *crdt.Primitive, executedAt *ticket.Ticket) *Increase {
	return &Increase{
		base:  base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		value: value,
	}
}

// Value returns the increment.
func (o *Increase) Value() *crdt.Primitive { return o.value }

// Execute increases the counter. The reverse operation increases by the negated value.
func (o *Increase) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	counter, err := findParent[*crdt.Counter](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	if _, err := counter.Increase(o.value); err != nil {
		return nil, nil, err
	}
	negated, err := negate(o.value)
	if err != nil {
		return nil, nil, err
	}

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return []OpInfo{{
		Type:  OpIncrease,
		Path:  path,
		Value: o.value.Marshal(),
	}}, NewIncrease(o.parentCreatedAt, negated, nil), nil
}

func negate(p *crdt.Primitive) (*crdt.Primitive, error) {
	switch v := p.Value().(type) {
	case int32:
		return crdt.NewPrimitive(-v, p.CreatedAt())
	case int64:
		return crdt.NewPrimitive(-v, p.CreatedAt())
	case float64:
		return crdt.NewPrimitive(-v, p.CreatedAt())
	}
	return nil, fmt.Errorf("negate %s: %w", p.ValueType(), ErrNotApplicableDataType)
}
