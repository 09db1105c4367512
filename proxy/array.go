package proxy

import (
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/ticket"
)

// Array is the handle of an array.
type Array struct {
	ctx *change.Context
	arr *crdt.Array
}

// NewArray creates the handle of arr within an update.
func NewArray(ctx *change.Context, arr *crdt.Array) *Array {
	return &Array{ctx: ctx, arr: arr}
}

// Element returns the underlying element.
func (p *Array) Element() *crdt.Array {
	return p.arr
}

// prevCreatedAt returns the element an insertion at index goes after.
func (p *Array) prevCreatedAt(index int) (*ticket.Ticket, error) {
	if err := validateRange(index, index, p.arr.Len()); err != nil {
		return nil, err
	}
	if index == 0 {
		return ticket.InitialTicket, nil
	}
	prev, err := p.arr.Get(index - 1)
	if err != nil {
		return nil, err
	}
	return prev.CreatedAt(), nil
}

func (p *Array) insert(index int, build func() (crdt.Element, error)) (crdt.Element, error) {
	if err := checkWritable(p.ctx); err != nil {
		return nil, err
	}
	prevCreatedAt, err := p.prevCreatedAt(index)
	if err != nil {
		return nil, err
	}
	value, err := build()
	if err != nil {
		return nil, err
	}
	if err := p.ctx.Execute(operations.NewAdd(p.arr.CreatedAt(), prevCreatedAt, value, value.CreatedAt())); err != nil {
		return nil, err
	}
	return p.arr.GetByCreatedAt(value.CreatedAt()), nil
}

// Add appends values: primitives, map[string]interface{} or []interface{}.
func (p *Array) Add(values ...interface{}) error {
	for _, value := range values {
		if err := p.InsertAt(p.arr.Len(), value); err != nil {
			return err
		}
	}
	return nil
}

// InsertAt inserts a value so that it ends up at index.
func (p *Array) InsertAt(index int, value interface{}) error {
	_, err := p.insert(index, func() (crdt.Element, error) {
		return toElement(p.ctx, value, p.ctx.IssueTimeTicket())
	})
	return err
}

// AddNewObject appends a new empty object.
func (p *Array) AddNewObject() (*Object, error) {
	elem, err := p.insert(p.arr.Len(), func() (crdt.Element, error) {
		return crdt.NewObject(crdt.NewElementRHT(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewObject(p.ctx, elem.(*crdt.Object)), nil
}

// AddNewArray appends a new empty array.
func (p *Array) AddNewArray() (*Array, error) {
	elem, err := p.insert(p.arr.Len(), func() (crdt.Element, error) {
		return crdt.NewArray(crdt.NewRGATreeList(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewArray(p.ctx, elem.(*crdt.Array)), nil
}

// AddNewText appends a new empty text.
func (p *Array) AddNewText() (*Text, error) {
	elem, err := p.insert(p.arr.Len(), func() (crdt.Element, error) {
		return crdt.NewText(crdt.NewRGATreeSplit(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewText(p.ctx, elem.(*crdt.Text)), nil
}

// AddNewCounter appends a new counter.
func (p *Array) AddNewCounter(valueType crdt.CounterType, value interface{}) (*Counter, error) {
	elem, err := p.insert(p.arr.Len(), func() (crdt.Element, error) {
		return crdt.NewCounter(valueType, value, p.ctx.IssueTimeTicket())
	})
	if err != nil {
		return nil, err
	}
	return NewCounter(p.ctx, elem.(*crdt.Counter)), nil
}

// Delete removes the element at index.
func (p *Array) Delete(index int) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	elem, err := p.elementAt(index)
	if err != nil {
		return err
	}
	return p.ctx.Execute(operations.NewRemove(p.arr.CreatedAt(), elem.CreatedAt(), p.ctx.IssueTimeTicket()))
}

// Move moves the element at index so that it ends up at target, counted before the
// move.
func (p *Array) Move(index, target int) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	elem, err := p.elementAt(index)
	if err != nil {
		return err
	}
	if err := validateRange(target, target, p.arr.Len()); err != nil {
		return err
	}
	if target == index || target == index+1 {
		return nil
	}
	prevCreatedAt, err := p.prevCreatedAt(target)
	if err != nil {
		return err
	}
	return p.ctx.Execute(operations.NewMove(p.arr.CreatedAt(), prevCreatedAt, elem.CreatedAt(), p.ctx.IssueTimeTicket()))
}

func (p *Array) elementAt(index int) (crdt.Element, error) {
	if err := validateRange(index, index+1, p.arr.Len()); err != nil {
		return nil, err
	}
	return p.arr.Get(index)
}

// Len returns the number of elements.
func (p *Array) Len() int {
	return p.arr.Len()
}

// Get returns the handle of the element at index, or the primitive, or nil.
func (p *Array) Get(index int) interface{} {
	elem, err := p.elementAt(index)
	if err != nil {
		return nil
	}
	return wrap(p.ctx, elem)
}

// GetObject returns the object at index, or nil.
func (p *Array) GetObject(index int) *Object {
	obj, _ := p.Get(index).(*Object)
	return obj
}

// GetArray returns the array at index, or nil.
func (p *Array) GetArray(index int) *Array {
	arr, _ := p.Get(index).(*Array)
	return arr
}

// GetText returns the text at index, or nil.
func (p *Array) GetText(index int) *Text {
	text, _ := p.Get(index).(*Text)
	return text
}

// GetPrimitive returns the primitive at index, or nil.
func (p *Array) GetPrimitive(index int) *crdt.Primitive {
	prim, _ := p.Get(index).(*crdt.Primitive)
	return prim
}

// Marshal returns the JSON of the array.
func (p *Array) Marshal() string {
	return p.arr.Marshal()
}
