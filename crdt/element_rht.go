package crdt

import (
	"fmt"
	"sort"

	"github.com/brunokim/causal-doc/ticket"
)

// ElementRHTNode binds a key to an element.
type ElementRHTNode struct {
	key  string
	elem Element
}

// Key returns the key of the node.
func (n *ElementRHTNode) Key() string { return n.key }

// Element returns the element of the node.
func (n *ElementRHTNode) Element() Element { return n.elem }

// ElementRHT is the replicated hashtable of Object members. Besides the visible element
// of each key, it keeps every element ever set, addressable by creation time, so that
// operations on overwritten elements can still be resolved.
type ElementRHT struct {
	nodeMapByKey       map[string]*ElementRHTNode
	nodeMapByCreatedAt map[string]*ElementRHTNode
	// keys in the order they were first bound.
	keys []string
}

// NewElementRHT creates an empty table.
func NewElementRHT() *ElementRHT {
	return &ElementRHT{
		nodeMapByKey:       make(map[string]*ElementRHTNode),
		nodeMapByCreatedAt: make(map[string]*ElementRHTNode),
	}
}

// Set binds elem to key, if executedAt is newer than the current binding. The previous
// element is removed. A stale write is still recorded, born removed, so that it is
// registered and collected like any other tombstone. Returns the removed elements.
func (rht *ElementRHT) Set(key string, elem Element, executedAt *ticket.Ticket) []Element {
	var removed []Element
	node := &ElementRHTNode{key: key, elem: elem}
	rht.nodeMapByCreatedAt[elem.CreatedAt().Key()] = node

	prev, ok := rht.nodeMapByKey[key]
	if ok && !executedAt.After(prev.elem.CreatedAt()) {
		elem.SetRemovedAt(executedAt)
		return append(removed, elem)
	}
	if ok && !prev.elem.IsRemoved() && prev.elem.Remove(executedAt) {
		removed = append(removed, prev.elem)
	}
	rht.bind(node)
	return removed
}

// SetInternal stores an element as-is, used when decoding snapshots and copying.
func (rht *ElementRHT) SetInternal(key string, elem Element, visible bool) {
	node := &ElementRHTNode{key: key, elem: elem}
	rht.nodeMapByCreatedAt[elem.CreatedAt().Key()] = node
	if visible {
		rht.bind(node)
	}
}

func (rht *ElementRHT) bind(node *ElementRHTNode) {
	if _, ok := rht.nodeMapByKey[node.key]; !ok {
		rht.keys = append(rht.keys, node.key)
	}
	rht.nodeMapByKey[node.key] = node
}

// Get returns the live element at key, or nil.
func (rht *ElementRHT) Get(key string) Element {
	if node, ok := rht.nodeMapByKey[key]; ok && !node.elem.IsRemoved() {
		return node.elem
	}
	return nil
}

// GetByCreatedAt returns the element created at createdAt, live or not.
func (rht *ElementRHT) GetByCreatedAt(createdAt *ticket.Ticket) Element {
	if node, ok := rht.nodeMapByCreatedAt[createdAt.Key()]; ok {
		return node.elem
	}
	return nil
}

// Has returns whether key has a live element.
func (rht *ElementRHT) Has(key string) bool {
	return rht.Get(key) != nil
}

// Delete tombstones the element at key. Returns nil if nothing changed.
func (rht *ElementRHT) Delete(key string, executedAt *ticket.Ticket) Element {
	node, ok := rht.nodeMapByKey[key]
	if !ok || !node.elem.Remove(executedAt) {
		return nil
	}
	return node.elem
}

// DeleteByCreatedAt tombstones the element created at createdAt. Returns nil if nothing
// changed.
func (rht *ElementRHT) DeleteByCreatedAt(createdAt, executedAt *ticket.Ticket) (Element, error) {
	node, ok := rht.nodeMapByCreatedAt[createdAt.Key()]
	if !ok {
		return nil, fmt.Errorf("delete %s: %w", createdAt.ToTestString(), ErrChildNotFound)
	}
	if !node.elem.Remove(executedAt) {
		return nil, nil
	}
	return node.elem, nil
}

// SubPathOf returns the key bound to the element created at createdAt.
func (rht *ElementRHT) SubPathOf(createdAt *ticket.Ticket) (string, bool) {
	node, ok := rht.nodeMapByCreatedAt[createdAt.Key()]
	if !ok {
		return "", false
	}
	return node.key, true
}

// isVisible returns whether node is the current binding of its key.
func (rht *ElementRHT) isVisible(node *ElementRHTNode) bool {
	return rht.nodeMapByKey[node.key] == node
}

// Keys returns the keys with a live element, in the order they were first bound.
func (rht *ElementRHT) Keys() []string {
	var keys []string
	for _, key := range rht.keys {
		if rht.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Nodes returns every node, including tombstones, ordered by creation.
func (rht *ElementRHT) Nodes() []*ElementRHTNode {
	nodes := make([]*ElementRHTNode, 0, len(rht.nodeMapByCreatedAt))
	for _, node := range rht.nodeMapByCreatedAt {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[j].elem.CreatedAt().After(nodes[i].elem.CreatedAt())
	})
	return nodes
}

// Elements returns the live elements by key.
func (rht *ElementRHT) Elements() map[string]Element {
	members := make(map[string]Element)
	for key, node := range rht.nodeMapByKey {
		if !node.elem.IsRemoved() {
			members[key] = node.elem
		}
	}
	return members
}

// purge physically removes the node of elem.
func (rht *ElementRHT) purge(elem Element) error {
	key := elem.CreatedAt().Key()
	node, ok := rht.nodeMapByCreatedAt[key]
	if !ok {
		return fmt.Errorf("purge %s: %w", elem.CreatedAt().ToTestString(), ErrChildNotFound)
	}
	delete(rht.nodeMapByCreatedAt, key)
	if rht.isVisible(node) {
		delete(rht.nodeMapByKey, node.key)
		for i, k := range rht.keys {
			if k == node.key {
				rht.keys = append(rht.keys[:i], rht.keys[i+1:]...)
				break
			}
		}
	}
	return nil
}

// DeepCopy copies the table and all its elements.
func (rht *ElementRHT) DeepCopy() (*ElementRHT, error) {
	copied := NewElementRHT()
	for _, key := range rht.keys {
		elem, err := rht.nodeMapByKey[key].elem.DeepCopy()
		if err != nil {
			return nil, err
		}
		copied.SetInternal(key, elem, true)
	}
	for _, node := range rht.Nodes() {
		if rht.isVisible(node) {
			continue
		}
		elem, err := node.elem.DeepCopy()
		if err != nil {
			return nil, err
		}
		copied.SetInternal(node.key, elem, false)
	}
	return copied, nil
}
