package crdt

import (
	"fmt"
	"strings"

	"github.com/brunokim/causal-doc/splay"
	"github.com/brunokim/causal-doc/ticket"
)

// RGATreeListNode is a slot of the array holding one element.
type RGATreeListNode struct {
	indexNode *splay.Node[*RGATreeListNode]
	elem      Element

	prev *RGATreeListNode
	next *RGATreeListNode
}

func newRGATreeListNode(elem Element) *RGATreeListNode {
	node := &RGATreeListNode{elem: elem}
	node.indexNode = splay.NewNode(node)
	return node
}

// Element returns the element of the node.
func (n *RGATreeListNode) Element() Element {
	return n.elem
}

// CreatedAt returns the creation time of the element.
func (n *RGATreeListNode) CreatedAt() *ticket.Ticket {
	return n.elem.CreatedAt()
}

// Len is 1 for live elements, so the splay tree counts them.
func (n *RGATreeListNode) Len() int {
	if n.elem.IsRemoved() {
		return 0
	}
	return 1
}

func (n *RGATreeListNode) String() string {
	return n.elem.Marshal()
}

func (n *RGATreeListNode) positionedAt() *ticket.Ticket {
	if movedAt := n.elem.MovedAt(); movedAt != nil {
		return movedAt
	}
	return n.elem.CreatedAt()
}

// RGATreeList is a Replicated Growable Array of elements. Nodes are linked in causal
// insertion order and indexed by a splay tree where only live elements weigh.
type RGATreeList struct {
	dummyHead          *RGATreeListNode
	last               *RGATreeListNode
	nodeMapByIndex     *splay.Tree[*RGATreeListNode]
	nodeMapByCreatedAt map[string]*RGATreeListNode
}

// NewRGATreeList creates an empty list.
func NewRGATreeList() *RGATreeList {
	head, err := NewPrimitive(nil, ticket.InitialTicket)
	if err != nil {
		panic(fmt.Sprintf("NewRGATreeList: %v", err))
	}
	head.SetRemovedAt(ticket.InitialTicket)
	dummyHead := newRGATreeListNode(head)
	return &RGATreeList{
		dummyHead:          dummyHead,
		last:               dummyHead,
		nodeMapByIndex:     splay.NewTree(dummyHead.indexNode),
		nodeMapByCreatedAt: map[string]*RGATreeListNode{head.CreatedAt().Key(): dummyHead},
	}
}

// Len returns the number of live elements.
func (l *RGATreeList) Len() int {
	return l.nodeMapByIndex.Len()
}

// Nodes returns every node after the head, including tombstones.
func (l *RGATreeList) Nodes() []*RGATreeListNode {
	var nodes []*RGATreeListNode
	for node := l.dummyHead.next; node != nil; node = node.next {
		nodes = append(nodes, node)
	}
	return nodes
}

// LastCreatedAt returns the creation time of the last node, live or not.
func (l *RGATreeList) LastCreatedAt() *ticket.Ticket {
	return l.last.CreatedAt()
}

// Add appends elem at the end of the list.
func (l *RGATreeList) Add(elem Element, executedAt *ticket.Ticket) error {
	return l.InsertAfter(l.last.CreatedAt(), elem, executedAt)
}

// InsertAfter inserts elem after the element created at prevCreatedAt. Concurrent
// insertions after the same element are ordered newest first: any following node
// positioned after executedAt is skipped.
//
// Time complexity: O(log n), amortized, plus the number of skipped nodes.
func (l *RGATreeList) InsertAfter(prevCreatedAt *ticket.Ticket, elem Element, executedAt *ticket.Ticket) error {
	prev, ok := l.nodeMapByCreatedAt[prevCreatedAt.Key()]
	if !ok {
		return fmt.Errorf("insert after %s: %w", prevCreatedAt.ToTestString(), ErrChildNotFound)
	}
	l.insertAfter(prev, newRGATreeListNode(elem), executedAt)
	return nil
}

func (l *RGATreeList) insertAfter(prev, node *RGATreeListNode, executedAt *ticket.Ticket) {
	for prev.next != nil && prev.next.positionedAt().After(executedAt) {
		prev = prev.next
	}
	node.prev = prev
	node.next = prev.next
	if prev.next != nil {
		prev.next.prev = node
	}
	prev.next = node
	if prev == l.last {
		l.last = node
	}
	l.nodeMapByIndex.InsertAfter(prev.indexNode, node.indexNode)
	l.nodeMapByCreatedAt[node.CreatedAt().Key()] = node
}

// MoveAfter moves the element created at createdAt after the element created at
// prevCreatedAt, if executedAt is newer than its current position.
func (l *RGATreeList) MoveAfter(prevCreatedAt, createdAt, executedAt *ticket.Ticket) error {
	prev, ok := l.nodeMapByCreatedAt[prevCreatedAt.Key()]
	if !ok {
		return fmt.Errorf("move after %s: %w", prevCreatedAt.ToTestString(), ErrChildNotFound)
	}
	node, ok := l.nodeMapByCreatedAt[createdAt.Key()]
	if !ok {
		return fmt.Errorf("move %s: %w", createdAt.ToTestString(), ErrChildNotFound)
	}
	if prev == node || !executedAt.After(node.positionedAt()) {
		return nil
	}
	l.release(node)
	moved := newRGATreeListNode(node.elem)
	l.insertAfter(prev, moved, executedAt)
	node.elem.SetMovedAt(executedAt)
	return nil
}

// release unlinks node from the list and the index.
func (l *RGATreeList) release(node *RGATreeListNode) {
	if node == l.last {
		l.last = node.prev
	}
	node.prev.next = node.next
	if node.next != nil {
		node.next.prev = node.prev
	}
	node.prev, node.next = nil, nil
	l.nodeMapByIndex.Delete(node.indexNode)
	delete(l.nodeMapByCreatedAt, node.CreatedAt().Key())
}

// FindByIndex returns the node of the index-th live element.
func (l *RGATreeList) FindByIndex(index int) (*RGATreeListNode, error) {
	if index < 0 || index >= l.Len() {
		return nil, fmt.Errorf("index %d of %d elements: %w", index, l.Len(), ErrInvalidPosition)
	}
	indexNode, offset, err := l.nodeMapByIndex.Find(index)
	if err != nil {
		return nil, err
	}
	node := indexNode.Value()
	if (index == 0 && node == l.dummyHead) || offset > 0 {
		for node = node.next; node != nil && node.elem.IsRemoved(); node = node.next {
		}
	}
	if node == nil {
		return nil, fmt.Errorf("index %d: %w", index, ErrInvalidPosition)
	}
	return node, nil
}

// Get returns the node of the element created at createdAt.
func (l *RGATreeList) Get(createdAt *ticket.Ticket) (*RGATreeListNode, bool) {
	node, ok := l.nodeMapByCreatedAt[createdAt.Key()]
	return node, ok
}

// FindPrevCreatedAt returns the creation time of the live element before the element
// created at createdAt, or the head's.
func (l *RGATreeList) FindPrevCreatedAt(createdAt *ticket.Ticket) (*ticket.Ticket, error) {
	node, ok := l.nodeMapByCreatedAt[createdAt.Key()]
	if !ok {
		return nil, fmt.Errorf("prev of %s: %w", createdAt.ToTestString(), ErrChildNotFound)
	}
	for node = node.prev; node != l.dummyHead && node.elem.IsRemoved(); node = node.prev {
	}
	return node.CreatedAt(), nil
}

// IndexOf returns the index of node among live elements.
func (l *RGATreeList) IndexOf(node *RGATreeListNode) int {
	return l.nodeMapByIndex.IndexOf(node.indexNode)
}

// DeleteByCreatedAt tombstones the element created at createdAt. Returns nil if
// nothing changed.
func (l *RGATreeList) DeleteByCreatedAt(createdAt, executedAt *ticket.Ticket) (Element, error) {
	node, ok := l.nodeMapByCreatedAt[createdAt.Key()]
	if !ok {
		return nil, fmt.Errorf("delete %s: %w", createdAt.ToTestString(), ErrChildNotFound)
	}
	return l.delete(node, executedAt), nil
}

// Delete tombstones the index-th live element.
func (l *RGATreeList) Delete(index int, executedAt *ticket.Ticket) (Element, error) {
	node, err := l.FindByIndex(index)
	if err != nil {
		return nil, err
	}
	return l.delete(node, executedAt), nil
}

func (l *RGATreeList) delete(node *RGATreeListNode, executedAt *ticket.Ticket) Element {
	alive := !node.elem.IsRemoved()
	if !node.elem.Remove(executedAt) {
		return nil
	}
	if alive {
		l.nodeMapByIndex.UpdateWeight(node.indexNode)
	}
	return node.elem
}

// purge physically removes the node of elem.
func (l *RGATreeList) purge(elem Element) error {
	node, ok := l.nodeMapByCreatedAt[elem.CreatedAt().Key()]
	if !ok {
		return fmt.Errorf("purge %s: %w", elem.CreatedAt().ToTestString(), ErrChildNotFound)
	}
	l.release(node)
	return nil
}

// ToTestString returns the index tree in a compact form.
func (l *RGATreeList) ToTestString() string {
	var sb strings.Builder
	for node := l.dummyHead; node != nil; node = node.next {
		if node != l.dummyHead {
			sb.WriteString("-")
		}
		fmt.Fprintf(&sb, "[%s:%s]", node.CreatedAt().ToTestString(), node.elem.Marshal())
		if node.elem.IsRemoved() {
			sb.WriteString("x")
		}
	}
	return sb.String()
}
