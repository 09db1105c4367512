package crdt

import (
	"fmt"

	"github.com/brunokim/causal-doc/ticket"
)

// Object is a map from keys to elements.
type Object struct {
	elementTimes
	memberNodes *ElementRHT
}

// NewObject creates an object holding memberNodes.
func NewObject(memberNodes *ElementRHT, createdAt *ticket.Ticket) *Object {
	return &Object{
		elementTimes: elementTimes{createdAt: createdAt},
		memberNodes:  memberNodes,
	}
}

// Set binds value to key. Returns the elements removed by the write.
func (o *Object) Set(key string, value Element, executedAt *ticket.Ticket) []Element {
	return o.memberNodes.Set(key, value, executedAt)
}

// Get returns the live element at key, or nil.
func (o *Object) Get(key string) Element {
	return o.memberNodes.Get(key)
}

// GetByCreatedAt returns the member created at createdAt, live or not.
func (o *Object) GetByCreatedAt(createdAt *ticket.Ticket) Element {
	return o.memberNodes.GetByCreatedAt(createdAt)
}

// Has returns whether key has a live element.
func (o *Object) Has(key string) bool {
	return o.memberNodes.Has(key)
}

// Delete tombstones the element at key. Returns nil if nothing changed.
func (o *Object) Delete(key string, executedAt *ticket.Ticket) Element {
	return o.memberNodes.Delete(key, executedAt)
}

// DeleteByCreatedAt tombstones the member created at createdAt.
func (o *Object) DeleteByCreatedAt(createdAt, executedAt *ticket.Ticket) (Element, error) {
	return o.memberNodes.DeleteByCreatedAt(createdAt, executedAt)
}

// SubPathOf returns the key of the member created at createdAt.
func (o *Object) SubPathOf(createdAt *ticket.Ticket) (string, bool) {
	return o.memberNodes.SubPathOf(createdAt)
}

// Keys returns the live keys in the order they were first set.
func (o *Object) Keys() []string {
	return o.memberNodes.Keys()
}

// Members returns the live members.
func (o *Object) Members() map[string]Element {
	return o.memberNodes.Elements()
}

// RHTNodes returns every member, including overwritten and removed ones.
func (o *Object) RHTNodes() []*ElementRHTNode {
	return o.memberNodes.Nodes()
}

// IsVisible returns whether node is the current binding of its key.
func (o *Object) IsVisible(node *ElementRHTNode) bool {
	return o.memberNodes.isVisible(node)
}

// Purge physically removes a member.
func (o *Object) Purge(child Element) error {
	return o.memberNodes.purge(child)
}

// Descendants visits every member recursively, including tombstones.
func (o *Object) Descendants(callback func(elem Element, parent Container) bool) {
	for _, node := range o.memberNodes.Nodes() {
		if callback(node.elem, o) {
			return
		}
		if c, ok := node.elem.(Container); ok {
			c.Descendants(callback)
		}
	}
}

// Marshal returns the JSON form of the object.
func (o *Object) Marshal() string {
	return toJSON(o, false)
}

// DeepCopy copies the object and all its members.
func (o *Object) DeepCopy() (Element, error) {
	members, err := o.memberNodes.DeepCopy()
	if err != nil {
		return nil, fmt.Errorf("copy object %s: %w", o.createdAt.ToTestString(), err)
	}
	return &Object{
		elementTimes: o.copyTimes(),
		memberNodes:  members,
	}, nil
}
