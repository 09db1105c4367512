/*
Package index provides an n-ary tree whose nodes know the size of their contents, so that a
position in a flat index can be converted into a node in the tree, and back, in O(depth).

The flat index counts text characters and the open and close tags of elements. For the tree

	<root>
	  <p>
	    "ab"
	  </p>
	  <p>
	    <b>"cd"</b>
	  </p>
	</root>

the indexes are:

	0   1   2   3    4   5   6   7   8    9
	<p>  a   b  </p> <p> <b>  c   d  </b> </p>

So an element takes two extra positions, its padding, while a text takes as many positions
as its length. Each element stores the sum of the padded lengths of its live children, and
removed nodes stay in place without being counted.
*/
package index

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultRootType is the type of the root element.
	DefaultRootType = "root"
	// DefaultTextType is the type of text nodes.
	DefaultTextType = "text"
	// ElementPaddingSize is the size of the open and close tags of an element.
	ElementPaddingSize = 2
)

var (
	ErrInvalidMethodCallForTextNode = errors.New("text node cannot have children")
	ErrChildNotFound                = errors.New("child not found")
	ErrInvalidRange                 = errors.New("invalid range")
	ErrInvalidPath                  = errors.New("invalid path")
)

// Value is the content held by a node.
type Value interface {
	IsRemoved() bool
	// Length is the length of a text node's content.
	Length() int
	String() string
}

// TokenType is the kind of boundary visited by TokensBetween.
type TokenType int

const (
	// Start is the open tag of an element.
	Start TokenType = iota
	// End is the close tag of an element.
	End
	// Text is a whole text node.
	Text
)

func (t TokenType) String() string {
	switch t {
	case Start:
		return "Start"
	case End:
		return "End"
	case Text:
		return "Text"
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// TreeToken is a node boundary visited in a range.
type TreeToken[V Value] struct {
	Node      V
	TokenType TokenType
}

// +------+
// | Node |
// +------+

// Node is a node of the tree.
type Node[V Value] struct {
	Type   string
	Parent *Node[V]
	Value  V
	// Length is the text length for text nodes, or the sum of the padded lengths of live
	// children for elements.
	Length int

	children []*Node[V]
}

// NewNode creates a node. The length of an element is computed from its children.
func NewNode[V Value](nodeType string, value V, children ...*Node[V]) *Node[V] {
	n := &Node[V]{
		Type:     nodeType,
		Value:    value,
		children: children,
	}
	if n.IsText() {
		n.Length = value.Length()
		return n
	}
	for _, child := range children {
		child.Parent = n
		if !child.Value.IsRemoved() {
			n.Length += child.PaddedLength()
		}
	}
	return n
}

// IsText returns whether this is a text node.
func (n *Node[V]) IsText() bool {
	return n.Type == DefaultTextType
}

// PaddedLength is the number of positions the node takes in its parent.
func (n *Node[V]) PaddedLength() int {
	if n.IsText() {
		return n.Length
	}
	return n.Length + ElementPaddingSize
}

// Children returns the live children, or every child if includeRemoved is set.
func (n *Node[V]) Children(includeRemoved ...bool) []*Node[V] {
	if len(includeRemoved) > 0 && includeRemoved[0] {
		return n.children
	}
	var children []*Node[V]
	for _, child := range n.children {
		if !child.Value.IsRemoved() {
			children = append(children, child)
		}
	}
	return children
}

// SetChildren replaces the children of an element. Lengths are left to the caller.
func (n *Node[V]) SetChildren(children []*Node[V]) error {
	if n.IsText() {
		return ErrInvalidMethodCallForTextNode
	}
	n.children = children
	for _, child := range children {
		child.Parent = n
	}
	return nil
}

// HasTextChild returns whether any live child is a text node.
func (n *Node[V]) HasTextChild() bool {
	for _, child := range n.Children() {
		if child.IsText() {
			return true
		}
	}
	return false
}

// UpdateAncestorsSize propagates the padded length of this node to its ancestors: added
// if the node is live, subtracted if it was just removed. Propagation stops at a removed
// ancestor, since it is not counted by its own parent anymore.
func (n *Node[V]) UpdateAncestorsSize() {
	sign := 1
	if n.Value.IsRemoved() {
		sign = -1
	}
	n.AddAncestorsSize(n.PaddedLength() * sign)
}

// AddAncestorsSize adds delta to the length of the ancestors, up to the first removed
// one.
func (n *Node[V]) AddAncestorsSize(delta int) {
	for parent := n.Parent; parent != nil; parent = parent.Parent {
		parent.Length += delta
		if parent.Value.IsRemoved() {
			break
		}
	}
}

// UpdateDescendantsSize recomputes the length of every element below this node and
// returns its padded length.
func (n *Node[V]) UpdateDescendantsSize() int {
	if n.IsText() {
		return n.PaddedLength()
	}
	size := 0
	for _, child := range n.children {
		childSize := child.UpdateDescendantsSize()
		if !child.Value.IsRemoved() {
			size += childSize
		}
	}
	n.Length = size
	return n.PaddedLength()
}

// Append adds nodes at the end of the children.
func (n *Node[V]) Append(nodes ...*Node[V]) error {
	if n.IsText() {
		return ErrInvalidMethodCallForTextNode
	}
	n.children = append(n.children, nodes...)
	for _, node := range nodes {
		node.Parent = n
		if !node.Value.IsRemoved() {
			node.UpdateAncestorsSize()
		}
	}
	return nil
}

// InsertAt inserts node at offset, counting removed children.
func (n *Node[V]) InsertAt(node *Node[V], offset int) error {
	if n.IsText() {
		return ErrInvalidMethodCallForTextNode
	}
	if offset < 0 || offset > len(n.children) {
		return fmt.Errorf("insert at %d of %d children: %w", offset, len(n.children), ErrInvalidRange)
	}
	n.children = append(n.children, nil)
	copy(n.children[offset+1:], n.children[offset:])
	n.children[offset] = node
	node.Parent = n
	if !node.Value.IsRemoved() {
		node.UpdateAncestorsSize()
	}
	return nil
}

// InsertAfter inserts node right after ref.
func (n *Node[V]) InsertAfter(node, ref *Node[V]) error {
	offset := n.OffsetOfChild(ref)
	if offset < 0 {
		return ErrChildNotFound
	}
	return n.InsertAt(node, offset+1)
}

// RemoveChild detaches child. If it was live, its size is subtracted from the ancestors.
func (n *Node[V]) RemoveChild(child *Node[V]) error {
	if n.IsText() {
		return ErrInvalidMethodCallForTextNode
	}
	offset := n.OffsetOfChild(child)
	if offset < 0 {
		return ErrChildNotFound
	}
	n.children = append(n.children[:offset], n.children[offset+1:]...)
	if !child.Value.IsRemoved() {
		child.AddAncestorsSize(-child.PaddedLength())
	}
	child.Parent = nil
	return nil
}

// FindOffset returns the offset of child among the live children.
func (n *Node[V]) FindOffset(child *Node[V]) (int, error) {
	if n.IsText() {
		return 0, ErrInvalidMethodCallForTextNode
	}
	offset := 0
	for _, c := range n.children {
		if c == child {
			return offset, nil
		}
		if !c.Value.IsRemoved() {
			offset++
		}
	}
	return 0, ErrChildNotFound
}

// OffsetOfChild returns the offset of child among all children, or -1.
func (n *Node[V]) OffsetOfChild(child *Node[V]) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// IsAncestorOf returns whether this node is a proper ancestor of node.
func (n *Node[V]) IsAncestorOf(node *Node[V]) bool {
	for p := node.Parent; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}
	return false
}

// +------+
// | Tree |
// +------+

// TreePos is a position inside a node: a character offset for text nodes, or a child
// offset among the live children for elements.
type TreePos[V Value] struct {
	Node   *Node[V]
	Offset int
}

// Tree is an index tree.
type Tree[V Value] struct {
	root *Node[V]
}

// NewTree creates a tree with the given root.
func NewTree[V Value](root *Node[V]) *Tree[V] {
	return &Tree[V]{root: root}
}

// Root returns the root node.
func (t *Tree[V]) Root() *Node[V] {
	return t.root
}

// Size returns the length of the root contents.
func (t *Tree[V]) Size() int {
	return t.root.Length
}

// TokensBetween visits the boundaries of nodes in the index range [from, to), in document
// order. Elements whose open tag is in range are visited as Start tokens, with ended
// telling whether their close tag is in range too; close tags in range are visited as End
// tokens.
func (t *Tree[V]) TokensBetween(from, to int, callback func(token TreeToken[V], ended bool)) error {
	return tokensBetween(t.root, from, to, callback)
}

func tokensBetween[V Value](root *Node[V], from, to int, callback func(TreeToken[V], bool)) error {
	if from > to {
		return fmt.Errorf("from %d is greater than to %d: %w", from, to, ErrInvalidRange)
	}
	if from > root.Length || to > root.Length {
		return fmt.Errorf("range [%d, %d) out of size %d: %w", from, to, root.Length, ErrInvalidRange)
	}
	if from == to {
		return nil
	}

	pos := 0
	for _, child := range root.Children() {
		if from-child.PaddedLength() < pos && pos < to {
			// Inside an element, the range is shifted by its open tag.
			fromChild, toChild := from-pos, to-pos
			if !child.IsText() {
				fromChild, toChild = fromChild-1, toChild-1
			}
			startContained := !child.IsText() && fromChild < 0
			endContained := !child.IsText() && toChild > child.Length

			if child.IsText() {
				callback(TreeToken[V]{Node: child.Value, TokenType: Text}, false)
			} else {
				if startContained {
					callback(TreeToken[V]{Node: child.Value, TokenType: Start}, endContained)
				}
				if err := tokensBetween(child, max(0, fromChild), min(toChild, child.Length), callback); err != nil {
					return err
				}
				if endContained {
					callback(TreeToken[V]{Node: child.Value, TokenType: End}, endContained)
				}
			}
		}
		pos += child.PaddedLength()
	}
	return nil
}

// FindTreePos returns the position of index. When the index is at the boundary of a text
// node, the text node is preferred over its parent element, unless preferText is false.
//
// Time complexity: O(depth * fanout).
func (t *Tree[V]) FindTreePos(index int, preferText ...bool) (*TreePos[V], error) {
	prefer := true
	if len(preferText) > 0 {
		prefer = preferText[0]
	}
	return findTreePos(t.root, index, prefer)
}

func findTreePos[V Value](node *Node[V], index int, preferText bool) (*TreePos[V], error) {
	if index < 0 || index > node.Length {
		return nil, fmt.Errorf("index %d out of size %d: %w", index, node.Length, ErrInvalidRange)
	}
	if node.IsText() {
		return &TreePos[V]{Node: node, Offset: index}, nil
	}

	offset, pos := 0, 0
	for _, child := range node.Children() {
		if preferText && child.IsText() && child.Length >= index-pos {
			return findTreePos(child, index-pos, preferText)
		}
		// Left of the child.
		if index == pos {
			return &TreePos[V]{Node: node, Offset: offset}, nil
		}
		// Right of the child, when texts are not preferred.
		if !preferText && child.PaddedLength() == index-pos {
			return &TreePos[V]{Node: node, Offset: offset + 1}, nil
		}
		// Inside the child, skipping its open tag.
		if child.PaddedLength() > index-pos {
			return findTreePos(child, index-pos-1, preferText)
		}
		pos += child.PaddedLength()
		offset++
	}
	return &TreePos[V]{Node: node, Offset: offset}, nil
}

// IndexOf returns the flat index of pos.
//
// Time complexity: O(depth * fanout).
func (t *Tree[V]) IndexOf(pos *TreePos[V]) (int, error) {
	node := pos.Node
	size, depth := 0, 1
	if node.IsText() {
		size += pos.Offset
		parent := node.Parent
		offset, err := parent.FindOffset(node)
		if err != nil {
			return 0, err
		}
		size += leftSiblingsSize(parent, offset)
		node = parent
	} else {
		size += leftSiblingsSize(node, pos.Offset)
	}
	for node.Parent != nil {
		parent := node.Parent
		offset, err := parent.FindOffset(node)
		if err != nil {
			return 0, err
		}
		size += leftSiblingsSize(parent, offset)
		depth++
		node = parent
	}
	return size + depth - 1, nil
}

// leftSiblingsSize sums the padded lengths of the first offset live children.
func leftSiblingsSize[V Value](parent *Node[V], offset int) int {
	size := 0
	for i, child := range parent.Children() {
		if i >= offset {
			break
		}
		size += child.PaddedLength()
	}
	return size
}

// TreePosToPath converts a position into a path of child offsets. The last element of the
// path is a character offset when the position is inside texts.
func (t *Tree[V]) TreePosToPath(pos *TreePos[V]) ([]int, error) {
	var path []int
	node := pos.Node
	if node.IsText() {
		parent := node.Parent
		offset, err := parent.FindOffset(node)
		if err != nil {
			return nil, err
		}
		path = append(path, textSiblingsSize(parent, offset)+pos.Offset)
		node = parent
	} else if node.HasTextChild() {
		path = append(path, textSiblingsSize(node, pos.Offset))
	} else {
		path = append(path, pos.Offset)
	}
	for node.Parent != nil {
		offset, err := node.Parent.FindOffset(node)
		if err != nil {
			return nil, err
		}
		path = append(path, offset)
		node = node.Parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func textSiblingsSize[V Value](parent *Node[V], offset int) int {
	size := 0
	for i, child := range parent.Children() {
		if i >= offset {
			break
		}
		size += child.Length
	}
	return size
}

// PathToTreePos converts a path into a position.
func (t *Tree[V]) PathToTreePos(path []int) (*TreePos[V], error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path: %w", ErrInvalidPath)
	}
	node := t.root
	for _, offset := range path[:len(path)-1] {
		children := node.Children()
		if offset < 0 || offset >= len(children) {
			return nil, fmt.Errorf("path %v: %w", path, ErrInvalidPath)
		}
		node = children[offset]
	}
	last := path[len(path)-1]
	if node.HasTextChild() {
		for _, child := range node.Children() {
			if last <= child.Length {
				return &TreePos[V]{Node: child, Offset: last}, nil
			}
			last -= child.Length
		}
		return nil, fmt.Errorf("path %v: %w", path, ErrInvalidPath)
	}
	if last < 0 || last > len(node.Children()) {
		return nil, fmt.Errorf("path %v: %w", path, ErrInvalidPath)
	}
	return &TreePos[V]{Node: node, Offset: last}, nil
}

// PathToIndex converts a path into a flat index.
func (t *Tree[V]) PathToIndex(path []int) (int, error) {
	pos, err := t.PathToTreePos(path)
	if err != nil {
		return 0, err
	}
	return t.IndexOf(pos)
}

// IndexToPath converts a flat index into a path.
func (t *Tree[V]) IndexToPath(index int) ([]int, error) {
	pos, err := t.FindTreePos(index)
	if err != nil {
		return nil, err
	}
	return t.TreePosToPath(pos)
}

// +-----------+
// | Traversal |
// +-----------+

// Traverse visits live nodes in postorder.
func Traverse[V Value](tree *Tree[V], fn func(node *Node[V], depth int)) {
	traverse(tree.root, 0, false, func(node *Node[V], depth int) error {
		fn(node, depth)
		return nil
	})
}

// TraverseNode visits node and all its descendants, including removed ones, in
// postorder.
func TraverseNode[V Value](node *Node[V], fn func(node *Node[V], depth int) error) error {
	return traverse(node, 0, true, fn)
}

func traverse[V Value](node *Node[V], depth int, includeRemoved bool, fn func(*Node[V], int) error) error {
	for _, child := range node.Children(includeRemoved) {
		if err := traverse(child, depth+1, includeRemoved, fn); err != nil {
			return err
		}
	}
	return fn(node, depth)
}

// ToXML renders the live contents below node. Values implementing
// `Attributes() string` contribute attributes to their open tag.
func ToXML[V Value](node *Node[V]) string {
	if node.IsText() {
		return node.Value.String()
	}
	var sb strings.Builder
	sb.WriteString("<" + node.Type)
	if attrs, ok := any(node.Value).(interface{ Attributes() string }); ok {
		sb.WriteString(attrs.Attributes())
	}
	sb.WriteString(">")
	for _, child := range node.Children() {
		sb.WriteString(ToXML(child))
	}
	sb.WriteString("</" + node.Type + ">")
	return sb.String()
}
