/*
Package splay provides a self-adjusting binary tree that indexes an ordered sequence by the
length of its values.

Each node weighs the total length of its subtree, so finding the node that covers a given
position only needs to compare against left weights on the way down. Every access splays the
node to the root with zig, zig-zig and zig-zag rotations, keeping the amortized cost of all
operations in O(log n) even under adversarial access patterns [1].

Values with zero length (tombstones) stay in the tree but weigh nothing, so they are never
returned by Find for positions greater than zero.

[1]: SLEATOR, D. D.; TARJAN, R. E. Self-adjusting binary search trees.
*/
package splay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutOfIndex = errors.New("index out of tree range")
)

// Value is the content stored in a node.
type Value interface {
	// Len returns the length of the value, zero if it must not be counted.
	Len() int
	String() string
}

// Node is a node of the tree, holding a single value.
type Node[V Value] struct {
	value  V
	weight int

	left   *Node[V]
	right  *Node[V]
	parent *Node[V]
}

// NewNode creates a detached node holding value.
func NewNode[V Value](value V) *Node[V] {
	n := &Node[V]{value: value}
	n.weight = value.Len()
	return n
}

// Value returns the value of this node.
func (n *Node[V]) Value() V {
	return n.value
}

func (n *Node[V]) leftWeight() int {
	if n.left == nil {
		return 0
	}
	return n.left.weight
}

func (n *Node[V]) rightWeight() int {
	if n.right == nil {
		return 0
	}
	return n.right.weight
}

func (n *Node[V]) unlink() {
	n.parent = nil
	n.left = nil
	n.right = nil
}

func (n *Node[V]) hasLinks() bool {
	return n.parent != nil || n.left != nil || n.right != nil
}

// +------+
// | Tree |
// +------+

// Tree is a splay tree ordering its nodes by insertion position.
type Tree[V Value] struct {
	root *Node[V]
}

// NewTree creates a tree with an optional root.
func NewTree[V Value](root *Node[V]) *Tree[V] {
	return &Tree[V]{root: root}
}

// Len returns the total weight of the tree.
func (t *Tree[V]) Len() int {
	if t.root == nil {
		return 0
	}
	return t.root.weight
}

// Insert appends the node at the end of the tree.
func (t *Tree[V]) Insert(node *Node[V]) *Node[V] {
	if t.root == nil {
		t.root = node
		return node
	}
	return t.InsertAfter(t.rightmost(), node)
}

// InsertAfter inserts node right after prev. A nil prev inserts at the front.
//
// Time complexity: O(log n), amortized.
func (t *Tree[V]) InsertAfter(prev, node *Node[V]) *Node[V] {
	if prev == nil {
		node.right = t.root
		if t.root != nil {
			t.root.parent = node
		}
		t.root = node
		t.updateWeight(node)
		return node
	}

	t.Splay(prev)
	t.root = node
	node.right = prev.right
	if prev.right != nil {
		prev.right.parent = node
	}
	node.left = prev
	prev.parent = node
	prev.right = nil

	t.updateWeight(prev)
	t.updateWeight(node)
	return node
}

// Splay moves node to the root.
func (t *Tree[V]) Splay(node *Node[V]) {
	t.splayTo(node, nil)
}

// splayTo rotates node up until its parent is goal.
func (t *Tree[V]) splayTo(node, goal *Node[V]) {
	if node == nil {
		return
	}
	for node.parent != goal {
		parent := node.parent
		grand := parent.parent
		switch {
		case grand == goal:
			// zig
			t.rotate(node)
		case (grand.left == parent) == (parent.left == node):
			// zig-zig
			t.rotate(parent)
			t.rotate(node)
		default:
			// zig-zag
			t.rotate(node)
			t.rotate(node)
		}
	}
}

// rotate lifts x above its parent, keeping the in-order sequence.
func (t *Tree[V]) rotate(x *Node[V]) {
	p := x.parent
	g := p.parent
	if p.left == x {
		p.left = x.right
		if x.right != nil {
			x.right.parent = p
		}
		x.right = p
	} else {
		p.right = x.left
		if x.left != nil {
			x.left.parent = p
		}
		x.left = p
	}
	p.parent = x
	x.parent = g
	switch {
	case g == nil:
		t.root = x
	case g.left == p:
		g.left = x
	default:
		g.right = x
	}
	t.updateWeight(p)
	t.updateWeight(x)
}

func (t *Tree[V]) updateWeight(n *Node[V]) {
	n.weight = n.value.Len() + n.leftWeight() + n.rightWeight()
}

// UpdateWeight recomputes the weight of node and its ancestors, after the length of its
// value changed.
func (t *Tree[V]) UpdateWeight(node *Node[V]) {
	for n := node; n != nil; n = n.parent {
		t.updateWeight(n)
	}
	t.Splay(node)
}

// Find returns the node covering index and the offset of index inside it. At boundaries
// it prefers the node to the left, so the offset is never zero unless index is zero.
//
// Time complexity: O(log n), amortized.
func (t *Tree[V]) Find(index int) (*Node[V], int, error) {
	if t.root == nil {
		return nil, 0, nil
	}
	if index < 0 || index > t.root.weight {
		return nil, 0, fmt.Errorf("find %d in tree of length %d: %w", index, t.root.weight, ErrOutOfIndex)
	}
	node := t.root
	offset := index
	for {
		if node.left != nil && offset <= node.leftWeight() {
			node = node.left
		} else if node.right != nil && node.leftWeight()+node.value.Len() < offset {
			offset -= node.leftWeight() + node.value.Len()
			node = node.right
		} else {
			offset -= node.leftWeight()
			break
		}
	}
	t.Splay(node)
	return node, offset, nil
}

// IndexOf returns the position where node starts, or -1 if it is not in the tree.
//
// Time complexity: O(depth).
func (t *Tree[V]) IndexOf(node *Node[V]) int {
	if node == nil || (node != t.root && !node.hasLinks()) {
		return -1
	}
	index := 0
	var prev *Node[V]
	for current := node; current != nil; current = current.parent {
		if prev == nil || prev == current.right {
			index += current.value.Len() + current.leftWeight()
		}
		prev = current
	}
	return index - node.value.Len()
}

// Delete removes node from the tree.
//
// Time complexity: O(log n), amortized.
func (t *Tree[V]) Delete(node *Node[V]) {
	t.Splay(node)
	left, right := node.left, node.right
	if left != nil {
		left.parent = nil
	}
	if right != nil {
		right.parent = nil
	}
	node.unlink()

	if left == nil {
		t.root = right
		return
	}
	leftTree := NewTree(left)
	last := leftTree.rightmost()
	leftTree.Splay(last)
	last.right = right
	if right != nil {
		right.parent = last
	}
	leftTree.updateWeight(last)
	t.root = last
}

// DeleteRange detaches every node strictly between left and right. The left boundary
// must exist; a nil right boundary removes everything after left.
//
// Both boundaries are splayed so that the range ends up as a single subtree, cut off in
// one step.
//
// Time complexity: O(log n), amortized.
func (t *Tree[V]) DeleteRange(left, right *Node[V]) {
	t.Splay(left)
	if right == nil {
		detach(left.right)
		left.right = nil
		t.updateWeight(left)
		return
	}
	t.splayTo(right, left)
	if left.right != right {
		panic(fmt.Sprintf("DeleteRange: right boundary %s is not after %s", right.value, left.value))
	}
	detach(right.left)
	right.left = nil
	t.updateWeight(right)
	t.updateWeight(left)
}

func detach[V Value](n *Node[V]) {
	if n != nil {
		n.parent = nil
	}
}

func (t *Tree[V]) rightmost() *Node[V] {
	node := t.root
	for node.right != nil {
		node = node.right
	}
	return node
}

// +-----------+
// | Debugging |
// +-----------+

func (t *Tree[V]) traverse(n *Node[V], fn func(*Node[V])) {
	if n == nil {
		return
	}
	t.traverse(n.left, fn)
	fn(n)
	t.traverse(n.right, fn)
}

// String concatenates all values in order.
func (t *Tree[V]) String() string {
	var sb strings.Builder
	t.traverse(t.root, func(n *Node[V]) {
		sb.WriteString(n.value.String())
	})
	return sb.String()
}

// ToTestString returns the weight and length of each node followed by its value.
func (t *Tree[V]) ToTestString() string {
	var sb strings.Builder
	t.traverse(t.root, func(n *Node[V]) {
		fmt.Fprintf(&sb, "[%d,%d]%s", n.weight, n.value.Len(), n.value)
	})
	return sb.String()
}

// CheckWeight returns whether every node weighs the length of its subtree.
func (t *Tree[V]) CheckWeight() bool {
	ok := true
	t.traverse(t.root, func(n *Node[V]) {
		if n.weight != n.value.Len()+n.leftWeight()+n.rightWeight() {
			ok = false
		}
	})
	return ok
}
