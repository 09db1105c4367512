package crdt

import (
	"fmt"

	"github.com/brunokim/causal-doc/ticket"
)

// Array is an ordered list of elements.
type Array struct {
	elementTimes
	elements *RGATreeList
}

// NewArray creates an array holding elements.
func NewArray(elements *RGATreeList, createdAt *ticket.Ticket) *Array {
	return &Array{
		elementTimes: elementTimes{createdAt: createdAt},
		elements:     elements,
	}
}

// Add appends elem at the end.
func (a *Array) Add(elem Element) error {
	return a.elements.Add(elem, elem.CreatedAt())
}

// InsertAfter inserts elem after the element created at prevCreatedAt.
func (a *Array) InsertAfter(prevCreatedAt *ticket.Ticket, elem Element, executedAt *ticket.Ticket) error {
	return a.elements.InsertAfter(prevCreatedAt, elem, executedAt)
}

// MoveAfter moves the element created at createdAt after the element created at
// prevCreatedAt.
func (a *Array) MoveAfter(prevCreatedAt, createdAt, executedAt *ticket.Ticket) error {
	return a.elements.MoveAfter(prevCreatedAt, createdAt, executedAt)
}

// Get returns the index-th live element.
func (a *Array) Get(index int) (Element, error) {
	node, err := a.elements.FindByIndex(index)
	if err != nil {
		return nil, err
	}
	return node.elem, nil
}

// GetByCreatedAt returns the element created at createdAt, live or not.
func (a *Array) GetByCreatedAt(createdAt *ticket.Ticket) Element {
	node, ok := a.elements.Get(createdAt)
	if !ok {
		return nil
	}
	return node.elem
}

// Delete tombstones the index-th live element.
func (a *Array) Delete(index int, executedAt *ticket.Ticket) (Element, error) {
	return a.elements.Delete(index, executedAt)
}

// DeleteByCreatedAt tombstones the element created at createdAt.
func (a *Array) DeleteByCreatedAt(createdAt, executedAt *ticket.Ticket) (Element, error) {
	return a.elements.DeleteByCreatedAt(createdAt, executedAt)
}

// FindPrevCreatedAt returns the creation time of the live element before the element
// created at createdAt.
func (a *Array) FindPrevCreatedAt(createdAt *ticket.Ticket) (*ticket.Ticket, error) {
	return a.elements.FindPrevCreatedAt(createdAt)
}

// LastCreatedAt returns the creation time of the last element, live or not, or the
// initial ticket if the array was always empty.
func (a *Array) LastCreatedAt() *ticket.Ticket {
	return a.elements.LastCreatedAt()
}

// IndexOf returns the index of the element created at createdAt, counting live elements
// before it.
func (a *Array) IndexOf(createdAt *ticket.Ticket) (int, bool) {
	node, ok := a.elements.Get(createdAt)
	if !ok {
		return 0, false
	}
	return a.elements.IndexOf(node), true
}

// Len returns the number of live elements.
func (a *Array) Len() int {
	return a.elements.Len()
}

// Elements returns the live elements in order.
func (a *Array) Elements() []Element {
	var elems []Element
	for _, node := range a.elements.Nodes() {
		if !node.elem.IsRemoved() {
			elems = append(elems, node.elem)
		}
	}
	return elems
}

// RGANodes returns every node of the array, including tombstones.
func (a *Array) RGANodes() []*RGATreeListNode {
	return a.elements.Nodes()
}

// Purge physically removes an element.
func (a *Array) Purge(child Element) error {
	return a.elements.purge(child)
}

// Descendants visits every element recursively, including tombstones.
func (a *Array) Descendants(callback func(elem Element, parent Container) bool) {
	for _, node := range a.elements.Nodes() {
		if callback(node.elem, a) {
			return
		}
		if c, ok := node.elem.(Container); ok {
			c.Descendants(callback)
		}
	}
}

// ToTestString returns the nodes of the array in a compact form.
func (a *Array) ToTestString() string {
	return a.elements.ToTestString()
}

// Marshal returns the JSON form of the array.
func (a *Array) Marshal() string {
	return toJSON(a, false)
}

// DeepCopy copies the array and all its elements.
func (a *Array) DeepCopy() (Element, error) {
	elements := NewRGATreeList()
	for _, node := range a.elements.Nodes() {
		elem, err := node.elem.DeepCopy()
		if err != nil {
			return nil, fmt.Errorf("copy array %s: %w", a.createdAt.ToTestString(), err)
		}
		if err := elements.Add(elem, elem.CreatedAt()); err != nil {
			return nil, err
		}
	}
	return &Array{
		elementTimes: a.copyTimes(),
		elements:     elements,
	}, nil
}
