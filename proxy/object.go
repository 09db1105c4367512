package proxy

import (
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
)

// Object is the handle of an object.
type Object struct {
	ctx *change.Context
	obj *crdt.Object
}

// NewObject creates the handle of obj within an update.
func NewObject(ctx *change.Context, obj *crdt.Object) *Object {
	return &Object{ctx: ctx, obj: obj}
}

// Element returns the underlying element.
func (p *Object) Element() *crdt.Object {
	return p.obj
}

func (p *Object) setElement(key string, build func() (crdt.Element, error)) (crdt.Element, error) {
	if err := checkWritable(p.ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	value, err := build()
	if err != nil {
		return nil, err
	}
	if err := p.ctx.Execute(operations.NewSet(p.obj.CreatedAt(), key, value, value.CreatedAt())); err != nil {
		return nil, err
	}
	return p.obj.Get(key), nil
}

// Set binds key to a value: a primitive, a map[string]interface{} or a []interface{}.
func (p *Object) Set(key string, value interface{}) error {
	_, err := p.setElement(key, func() (crdt.Element, error) {
		return toElement(p.ctx, value, p.ctx.IssueTimeTicket())
	})
	return err
}

// SetNewObject binds key to a new empty object.
func (p *Object) SetNewObject(key string) (*Object, error) {
	elem, err := p.setElement(key, func() (crdt.Element, error) {
		return crdt.NewObject(crdt.NewElementRHT(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewObject(p.ctx, elem.(*crdt.Object)), nil
}

// SetNewArray binds key to a new empty array.
func (p *Object) SetNewArray(key string) (*Array, error) {
	elem, err := p.setElement(key, func() (crdt.Element, error) {
		return crdt.NewArray(crdt.NewRGATreeList(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewArray(p.ctx, elem.(*crdt.Array)), nil
}

// SetNewText binds key to a new empty text.
func (p *Object) SetNewText(key string) (*Text, error) {
	elem, err := p.setElement(key, func() (crdt.Element, error) {
		return crdt.NewText(crdt.NewRGATreeSplit(), p.ctx.IssueTimeTicket()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewText(p.ctx, elem.(*crdt.Text)), nil
}

// SetNewCounter binds key to a new counter.
func (p *Object) SetNewCounter(key string, valueType crdt.CounterType, value interface{}) (*Counter, error) {
	elem, err := p.setElement(key, func() (crdt.Element, error) {
		return crdt.NewCounter(valueType, value, p.ctx.IssueTimeTicket())
	})
	if err != nil {
		return nil, err
	}
	return NewCounter(p.ctx, elem.(*crdt.Counter)), nil
}

// SetNewTree binds key to a new tree. A nil root creates an empty "root" element.
func (p *Object) SetNewTree(key string, root *TreeNode) (*Tree, error) {
	if root == nil {
		root = &TreeNode{Type: "root"}
	}
	elem, err := p.setElement(key, func() (crdt.Element, error) {
		if err := root.validate(); err != nil {
			return nil, err
		}
		if root.IsText() {
			return nil, errorf(ErrInvalidContent, "tree root can't be a text")
		}
		createdAt := p.ctx.IssueTimeTicket()
		return crdt.NewTree(root.toCRDT(createdAt, p.ctx.IssueTimeTicket), createdAt), nil
	})
	if err != nil {
		return nil, err
	}
	return NewTree(p.ctx, elem.(*crdt.Tree)), nil
}

// Delete removes key, if bound.
func (p *Object) Delete(key string) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	elem := p.obj.Get(key)
	if elem == nil {
		return nil
	}
	return p.ctx.Execute(operations.NewRemove(p.obj.CreatedAt(), elem.CreatedAt(), p.ctx.IssueTimeTicket()))
}

// Has returns whether key is bound.
func (p *Object) Has(key string) bool {
	return p.obj.Has(key)
}

// Keys returns the bound keys.
func (p *Object) Keys() []string {
	return p.obj.Keys()
}

// Get returns the handle of the value at key, or the primitive, or nil.
func (p *Object) Get(key string) interface{} {
	elem := p.obj.Get(key)
	if elem == nil {
		return nil
	}
	return wrap(p.ctx, elem)
}

// GetObject returns the object at key, or nil.
func (p *Object) GetObject(key string) *Object {
	obj, _ := p.Get(key).(*Object)
	return obj
}

// GetArray returns the array at key, or nil.
func (p *Object) GetArray(key string) *Array {
	arr, _ := p.Get(key).(*Array)
	return arr
}

// GetText returns the text at key, or nil.
func (p *Object) GetText(key string) *Text {
	text, _ := p.Get(key).(*Text)
	return text
}

// GetCounter returns the counter at key, or nil.
func (p *Object) GetCounter(key string) *Counter {
	counter, _ := p.Get(key).(*Counter)
	return counter
}

// GetTree returns the tree at key, or nil.
func (p *Object) GetTree(key string) *Tree {
	tree, _ := p.Get(key).(*Tree)
	return tree
}

// GetPrimitive returns the primitive at key, or nil.
func (p *Object) GetPrimitive(key string) *crdt.Primitive {
	prim, _ := p.Get(key).(*crdt.Primitive)
	return prim
}

// Marshal returns the JSON of the object.
func (p *Object) Marshal() string {
	return p.obj.Marshal()
}
