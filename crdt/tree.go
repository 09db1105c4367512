package crdt

import (
	"fmt"
	"strconv"
	"unicode/utf16"

	"github.com/tidwall/btree"

	"github.com/brunokim/causal-doc/index"
	"github.com/brunokim/causal-doc/ticket"
)

// +-------------+
// | IDs and pos |
// +-------------+

// TreeNodeID identifies a tree node: the ticket that created it, and for texts the
// offset inside the inserted value, since texts split as they are edited. Elements split
// into new nodes with their own tickets, so their offset is always zero.
type TreeNodeID struct {
	CreatedAt *ticket.Ticket
	Offset    int
}

// NewTreeNodeID creates a node ID.
func NewTreeNodeID(createdAt *ticket.Ticket, offset int) *TreeNodeID {
	return &TreeNodeID{CreatedAt: createdAt, Offset: offset}
}

// Compare orders IDs by creation, then by offset.
func (id *TreeNodeID) Compare(other *TreeNodeID) int {
	if cmp := id.CreatedAt.Compare(other.CreatedAt); cmp != 0 {
		return cmp
	}
	switch {
	case id.Offset > other.Offset:
		return 1
	case id.Offset < other.Offset:
		return -1
	}
	return 0
}

// Equal returns whether both IDs are the same.
func (id *TreeNodeID) Equal(other *TreeNodeID) bool {
	return id.Compare(other) == 0
}

func (id *TreeNodeID) toIDString() string {
	return id.CreatedAt.Key() + ":" + strconv.Itoa(id.Offset)
}

// ToTestString returns the ID in a short form.
func (id *TreeNodeID) ToTestString() string {
	return id.CreatedAt.ToTestString() + "/" + strconv.Itoa(id.Offset)
}

// TreePos is a position in the tree in terms of node IDs, valid in every replica: the
// parent, and the node to the left of the position. When the position is the first of
// the parent, the left sibling is the parent itself.
type TreePos struct {
	ParentID      *TreeNodeID
	LeftSiblingID *TreeNodeID
}

// NewTreePos creates a position.
func NewTreePos(parentID, leftSiblingID *TreeNodeID) *TreePos {
	return &TreePos{ParentID: parentID, LeftSiblingID: leftSiblingID}
}

// Equal returns whether both positions are the same.
func (p *TreePos) Equal(other *TreePos) bool {
	return p.ParentID.Equal(other.ParentID) && p.LeftSiblingID.Equal(other.LeftSiblingID)
}

// +------+
// | Node |
// +------+

// TreeNode is a node of a Tree: an element with attributes, or a text.
type TreeNode struct {
	Index *index.Node[*TreeNode]

	id        *TreeNodeID
	removedAt *ticket.Ticket

	// InsPrevID and InsNextID link the nodes split from the same node.
	InsPrevID *TreeNodeID
	InsNextID *TreeNodeID

	// Value is the content of text nodes.
	Value string
	// Attrs are the attributes of element nodes, possibly nil.
	Attrs *RHT
}

// NewTreeNode creates a node. A value makes it a text node.
func NewTreeNode(id *TreeNodeID, nodeType string, attrs *RHT, value ...string) *TreeNode {
	node := &TreeNode{id: id, Attrs: attrs}
	if len(value) > 0 {
		node.Value = value[0]
	}
	node.Index = index.NewNode(nodeType, node)
	return node
}

// ID returns the ID of the node.
func (n *TreeNode) ID() *TreeNodeID { return n.id }

// Type returns the node type, index.DefaultTextType for texts.
func (n *TreeNode) Type() string { return n.Index.Type }

// IsText returns whether this is a text node.
func (n *TreeNode) IsText() bool { return n.Index.IsText() }

// IsRemoved returns whether the node is a tombstone.
func (n *TreeNode) IsRemoved() bool { return n.removedAt != nil }

// RemovedAt returns the ticket of the removal, if removed.
func (n *TreeNode) RemovedAt() *ticket.Ticket { return n.removedAt }

// SetRemovedAt sets the removal ticket, used when decoding snapshots.
func (n *TreeNode) SetRemovedAt(removedAt *ticket.Ticket) { n.removedAt = removedAt }

// IDString identifies the node among every node of the document.
func (n *TreeNode) IDString() string { return n.id.toIDString() }

// Length returns the length of a text in UTF-16 code units.
func (n *TreeNode) Length() int {
	return len(utf16.Encode([]rune(n.Value)))
}

func (n *TreeNode) String() string { return n.Value }

// Attributes renders the attributes for XML.
func (n *TreeNode) Attributes() string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs.ToXMLAttributes()
}

// Children returns the live children.
func (n *TreeNode) Children() []*TreeNode {
	var children []*TreeNode
	for _, child := range n.Index.Children() {
		children = append(children, child.Value)
	}
	return children
}

// Append adds children, used to build content before inserting it.
func (n *TreeNode) Append(children ...*TreeNode) error {
	nodes := make([]*index.Node[*TreeNode], len(children))
	for i, child := range children {
		nodes[i] = child.Index
	}
	return n.Index.Append(nodes...)
}

func (n *TreeNode) canDelete(editedAt, maxCreatedAt *ticket.Ticket) bool {
	return !n.id.CreatedAt.After(maxCreatedAt) &&
		(n.removedAt == nil || editedAt.After(n.removedAt))
}

func (n *TreeNode) canStyle(editedAt, maxCreatedAt *ticket.Ticket) bool {
	if n.IsText() {
		return false
	}
	return !n.id.CreatedAt.After(maxCreatedAt) &&
		(n.removedAt == nil || editedAt.After(n.removedAt))
}

// remove tombstones the node, subtracting it from its ancestors if it was live.
func (n *TreeNode) remove(removedAt *ticket.Ticket) bool {
	if n.removedAt != nil && !removedAt.After(n.removedAt) {
		return false
	}
	alive := n.removedAt == nil
	n.removedAt = removedAt
	if alive {
		n.Index.UpdateAncestorsSize()
	}
	return true
}

// DeepCopy copies the node and its descendants, including tombstones.
func (n *TreeNode) DeepCopy() *TreeNode {
	clone := &TreeNode{
		id:        n.id,
		removedAt: n.removedAt,
		InsPrevID: n.InsPrevID,
		InsNextID: n.InsNextID,
		Value:     n.Value,
	}
	if n.Attrs != nil {
		clone.Attrs = n.Attrs.DeepCopy()
	}
	var children []*index.Node[*TreeNode]
	for _, child := range n.Index.Children(true) {
		children = append(children, child.Value.DeepCopy().Index)
	}
	clone.Index = index.NewNode(n.Index.Type, clone, children...)
	return clone
}

// +------+
// | Tree |
// +------+

// TreeChangeType is the kind of a TreeChange.
type TreeChangeType int

const (
	// TreeChangeContent replaces a range with nodes, possibly none.
	TreeChangeContent TreeChangeType = iota
	// TreeChangeStyle sets attributes of the elements in a range.
	TreeChangeStyle
	// TreeChangeRemoveStyle removes attributes of the elements in a range.
	TreeChangeRemoveStyle
)

// TreeChange is a change of the tree, addressed by index and by path before the change.
type TreeChange struct {
	Type               TreeChangeType
	Actor              ticket.ActorID
	From               int
	To                 int
	FromPath           []int
	ToPath             []int
	Value              []*TreeNode
	SplitLevel         int
	Attributes         map[string]string
	AttributesToRemove []string
}

// Tree is an ordered tree of elements and texts, like an XML document. It is indexed by
// position through an index tree, and by ID through an ordered map that finds the text
// covering any offset.
type Tree struct {
	elementTimes
	IndexTree   *index.Tree[*TreeNode]
	nodeMapByID *btree.BTreeG[*TreeNode]
	// splitRemoved holds tombstones split off since the last takeSplitRemoved.
	splitRemoved []*TreeNode
}

func lessTreeNode(a, b *TreeNode) bool {
	return a.id.Compare(b.id) < 0
}

// NewTree creates a tree from its root node, registering every descendant.
func NewTree(root *TreeNode, createdAt *ticket.Ticket) *Tree {
	t := &Tree{
		elementTimes: elementTimes{createdAt: createdAt},
		IndexTree:    index.NewTree(root.Index),
		nodeMapByID:  btree.NewBTreeGOptions(lessTreeNode, btree.Options{NoLocks: true}),
	}
	_ = index.TraverseNode(root.Index, func(node *index.Node[*TreeNode], depth int) error {
		t.nodeMapByID.Set(node.Value)
		return nil
	})
	return t
}

// Root returns the root node.
func (t *Tree) Root() *TreeNode {
	return t.IndexTree.Root().Value
}

// Size returns the size of the root contents.
func (t *Tree) Size() int {
	return t.IndexTree.Size()
}

// Nodes returns the live nodes in postorder.
func (t *Tree) Nodes() []*TreeNode {
	var nodes []*TreeNode
	index.Traverse(t.IndexTree, func(node *index.Node[*TreeNode], depth int) {
		nodes = append(nodes, node.Value)
	})
	return nodes
}

// ToXML renders the live contents as XML.
func (t *Tree) ToXML() string {
	return index.ToXML(t.IndexTree.Root())
}

// PathToIndex converts a path into an index.
func (t *Tree) PathToIndex(path []int) (int, error) {
	return t.IndexTree.PathToIndex(path)
}

// IndexToPath converts an index into a path.
func (t *Tree) IndexToPath(idx int) ([]int, error) {
	return t.IndexTree.IndexToPath(idx)
}

// findFloorNode returns the node of id's creation that covers id's offset.
func (t *Tree) findFloorNode(id *TreeNodeID) *TreeNode {
	var floor *TreeNode
	t.nodeMapByID.Descend(&TreeNode{id: id}, func(node *TreeNode) bool {
		floor = node
		return false
	})
	if floor == nil || !floor.id.CreatedAt.Equal(id.CreatedAt) {
		return nil
	}
	return floor
}

// findNode returns the node with exactly this id.
func (t *Tree) findNode(id *TreeNodeID) *TreeNode {
	node, ok := t.nodeMapByID.Get(&TreeNode{id: id})
	if !ok {
		return nil
	}
	return node
}

// FindPos converts an index into a position.
func (t *Tree) FindPos(idx int) (*TreePos, error) {
	treePos, err := t.IndexTree.FindTreePos(idx)
	if err != nil {
		return nil, err
	}
	node, offset := treePos.Node, treePos.Offset
	if node.IsText() {
		if offset > 0 {
			id := node.Value.id
			return NewTreePos(node.Parent.Value.id, NewTreeNodeID(id.CreatedAt, id.Offset+offset)), nil
		}
		// At the start of a text, the position is between the text and its left sibling.
		parent := node.Parent
		childOffset, err := parent.FindOffset(node)
		if err != nil {
			return nil, err
		}
		node, offset = parent, childOffset
	}

	if offset == 0 {
		return NewTreePos(node.Value.id, node.Value.id), nil
	}
	left := node.Children()[offset-1].Value
	leftID := left.id
	if left.IsText() {
		leftID = NewTreeNodeID(left.id.CreatedAt, left.id.Offset+left.Length())
	}
	return NewTreePos(node.Value.id, leftID), nil
}

// PathToPos converts a path into a position.
func (t *Tree) PathToPos(path []int) (*TreePos, error) {
	idx, err := t.IndexTree.PathToIndex(path)
	if err != nil {
		return nil, err
	}
	return t.FindPos(idx)
}

func (t *Tree) toTreeNodes(pos *TreePos) (*TreeNode, *TreeNode) {
	parent := t.findFloorNode(pos.ParentID)
	left := t.findFloorNode(pos.LeftSiblingID)
	if parent == nil || left == nil {
		return nil, nil
	}
	// A position at the end of a text run that was later split is the end of the left
	// half, not the start of the right one.
	if left.IsText() && pos.LeftSiblingID.Offset > 0 &&
		pos.LeftSiblingID.Offset == left.id.Offset && left.InsPrevID != nil {
		if insPrev := t.findNode(left.InsPrevID); insPrev != nil {
			left = insPrev
		}
	}
	return parent, left
}

// FindTreeNodesWithSplitText resolves pos into its parent and left sibling in this
// replica, splitting the text where the position falls. Nodes inserted concurrently at
// the same position by newer edits are kept to the left.
func (t *Tree) FindTreeNodesWithSplitText(pos *TreePos, editedAt *ticket.Ticket) (*TreeNode, *TreeNode, error) {
	parent, left := t.toTreeNodes(pos)
	if parent == nil || left == nil {
		return nil, nil, fmt.Errorf("position %s,%s: %w",
			pos.ParentID.ToTestString(), pos.LeftSiblingID.ToTestString(), ErrNodeNotFound)
	}

	if left.IsText() {
		if err := t.splitText(left, pos.LeftSiblingID.Offset-left.id.Offset); err != nil {
			return nil, nil, err
		}
	}

	// The left sibling may have been moved to another parent, by a merge or a split.
	isLeftMost := parent == left
	realParent := parent
	if !isLeftMost && left.Index.Parent != nil {
		realParent = left.Index.Parent.Value
	}

	start := 0
	if !isLeftMost {
		start = realParent.Index.OffsetOfChild(left.Index) + 1
	}
	children := realParent.Index.Children(true)
	for i := start; i < len(children); i++ {
		next := children[i].Value
		if !next.id.CreatedAt.After(editedAt) {
			break
		}
		left = next
	}
	return realParent, left, nil
}

// withSplitRemoved adds the tombstones split off by the last edit to pairs.
func (t *Tree) withSplitRemoved(pairs []GCPair) []GCPair {
	for _, node := range t.splitRemoved {
		pairs = append(pairs, GCPair{Parent: t, Child: node})
	}
	t.splitRemoved = nil
	return pairs
}

func (t *Tree) splitText(node *TreeNode, offset int) error {
	if offset < 0 || offset > node.Length() {
		return fmt.Errorf("split %s at %d: %w", node.id.ToTestString(), offset, ErrInvalidPosition)
	}
	if offset == 0 || offset == node.Length() {
		return nil
	}
	encoded := utf16.Encode([]rune(node.Value))
	right := NewTreeNode(
		NewTreeNodeID(node.id.CreatedAt, node.id.Offset+offset),
		node.Type(), nil, string(utf16.Decode(encoded[offset:])))
	right.removedAt = node.removedAt
	if right.IsRemoved() {
		t.splitRemoved = append(t.splitRemoved, right)
	}

	// Inserting the right half adds its length to the ancestors, so it is taken out of
	// them first.
	node.Value = string(utf16.Decode(encoded[:offset]))
	node.Index.Length = offset
	if !node.IsRemoved() {
		node.Index.AddAncestorsSize(-right.Length())
	}
	if err := node.Index.Parent.InsertAfter(right.Index, node.Index); err != nil {
		return err
	}
	t.linkSplit(node, right)
	return nil
}

// splitElement moves the children of node from offset on into a new sibling element.
func (t *Tree) splitElement(node *TreeNode, offset int, issuedAt *ticket.Ticket) (*TreeNode, error) {
	split := NewTreeNode(NewTreeNodeID(issuedAt, 0), node.Type(), nil)
	split.removedAt = node.removedAt
	if split.IsRemoved() {
		t.splitRemoved = append(t.splitRemoved, split)
	}
	if node.Attrs != nil {
		split.Attrs = node.Attrs.DeepCopy()
	}
	if err := node.Index.Parent.InsertAfter(split.Index, node.Index); err != nil {
		return nil, err
	}

	children := node.Index.Children(true)
	left := append([]*index.Node[*TreeNode](nil), children[:offset]...)
	right := append([]*index.Node[*TreeNode](nil), children[offset:]...)
	rightLength := 0
	for _, child := range right {
		if !child.Value.IsRemoved() {
			rightLength += child.PaddedLength()
		}
	}
	if err := node.Index.SetChildren(left); err != nil {
		return nil, err
	}
	if err := split.Index.SetChildren(right); err != nil {
		return nil, err
	}
	node.Index.Length -= rightLength
	split.Index.Length = rightLength

	t.linkSplit(node, split)
	return split, nil
}

func (t *Tree) linkSplit(node, split *TreeNode) {
	split.InsPrevID = node.id
	if node.InsNextID != nil {
		if insNext := t.findNode(node.InsNextID); insNext != nil {
			insNext.InsPrevID = split.id
		}
		split.InsNextID = node.InsNextID
	}
	node.InsNextID = split.id
	t.nodeMapByID.Set(split)
}

// toTreePos converts a parent and left sibling into a position of the index tree. A
// removed parent is replaced by its nearest live ancestor.
func (t *Tree) toTreePos(parent, left *TreeNode) (*index.TreePos[*TreeNode], error) {
	if parent.IsRemoved() {
		var child *TreeNode
		for parent.IsRemoved() {
			child = parent
			if child.Index.Parent == nil {
				return nil, fmt.Errorf("parent of %s: %w", child.id.ToTestString(), ErrNodeNotFound)
			}
			parent = child.Index.Parent.Value
		}
		offset, err := parent.Index.FindOffset(child.Index)
		if err != nil {
			return nil, err
		}
		return &index.TreePos[*TreeNode]{Node: parent.Index, Offset: offset}, nil
	}
	if parent == left {
		return &index.TreePos[*TreeNode]{Node: parent.Index, Offset: 0}, nil
	}
	offset, err := parent.Index.FindOffset(left.Index)
	if err != nil {
		return nil, err
	}
	if !left.IsRemoved() {
		if left.IsText() {
			return &index.TreePos[*TreeNode]{Node: left.Index, Offset: left.Index.PaddedLength()}, nil
		}
		offset++
	}
	return &index.TreePos[*TreeNode]{Node: parent.Index, Offset: offset}, nil
}

// ToIndex converts a parent and left sibling into an index.
func (t *Tree) ToIndex(parent, left *TreeNode) (int, error) {
	treePos, err := t.toTreePos(parent, left)
	if err != nil {
		return 0, err
	}
	return t.IndexTree.IndexOf(treePos)
}

// PosRangeToIndexRange converts positions into indexes, without splitting nodes.
func (t *Tree) PosRangeToIndexRange(from, to *TreePos) (int, int, error) {
	fromIdx, err := t.posToIndex(from)
	if err != nil {
		return 0, 0, err
	}
	toIdx, err := t.posToIndex(to)
	if err != nil {
		return 0, 0, err
	}
	return fromIdx, toIdx, nil
}

func (t *Tree) posToIndex(pos *TreePos) (int, error) {
	parent, left := t.toTreeNodes(pos)
	if parent == nil || left == nil {
		return 0, fmt.Errorf("position %s: %w", pos.LeftSiblingID.ToTestString(), ErrNodeNotFound)
	}
	idx, err := t.ToIndex(parent, left)
	if err != nil {
		return 0, err
	}
	if left.IsText() && !left.IsRemoved() {
		// The position may be inside the text.
		idx -= left.id.Offset + left.Length() - pos.LeftSiblingID.Offset
	}
	return idx, nil
}

// rangeOf resolves both ends of a range, splitting texts, and returns them with their
// indexes and paths before any change.
type treeRange struct {
	fromParent, fromLeft *TreeNode
	toParent, toLeft     *TreeNode
	fromIdx, toIdx       int
	fromPath, toPath     []int
}

func (t *Tree) rangeOf(from, to *TreePos, editedAt *ticket.Ticket) (*treeRange, error) {
	r := &treeRange{}
	var err error
	if r.fromParent, r.fromLeft, err = t.FindTreeNodesWithSplitText(from, editedAt); err != nil {
		return nil, err
	}
	if r.toParent, r.toLeft, err = t.FindTreeNodesWithSplitText(to, editedAt); err != nil {
		return nil, err
	}
	if r.fromIdx, err = t.ToIndex(r.fromParent, r.fromLeft); err != nil {
		return nil, err
	}
	if r.toIdx, err = t.ToIndex(r.toParent, r.toLeft); err != nil {
		return nil, err
	}
	if r.fromPath, err = t.IndexTree.IndexToPath(r.fromIdx); err != nil {
		return nil, err
	}
	if r.toPath, err = t.IndexTree.IndexToPath(r.toIdx); err != nil {
		return nil, err
	}
	return r, nil
}

// tokensBetween visits the tokens of a range. Concurrent edits may resolve the ends of a
// range out of order, which then covers nothing.
func (t *Tree) tokensBetween(r *treeRange, callback func(token index.TreeToken[*TreeNode], ended bool)) error {
	if r.fromIdx >= r.toIdx {
		return nil
	}
	return t.IndexTree.TokensBetween(r.fromIdx, r.toIdx, callback)
}

// EditByIndex edits the index range [from, to), used in tests.
func (t *Tree) EditByIndex(
	from, to int,
	contents []*TreeNode,
	splitLevel int,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) ([]TreeChange, []GCPair, map[string]*ticket.Ticket, error) {
	fromPos, err := t.FindPos(from)
	if err != nil {
		return nil, nil, nil, err
	}
	toPos, err := t.FindPos(to)
	if err != nil {
		return nil, nil, nil, err
	}
	return t.Edit(fromPos, toPos, contents, splitLevel, editedAt, maxCreatedAtMapByActor)
}

// Edit replaces the range [from, to) with contents, then splits splitLevel ancestors at
// the start of the range. Only nodes visible to the editor are removed, as in Text; nodes
// inside a removed element are removed with it, and the live children of an element
// whose open tag is removed but whose close tag is out of range are merged into the
// parent at the start of the range.
//
// Split elements take the tickets that follow editedAt, one per level.
func (t *Tree) Edit(
	from, to *TreePos,
	contents []*TreeNode,
	splitLevel int,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) ([]TreeChange, []GCPair, map[string]*ticket.Ticket, error) {
	// 1. Resolve the range, splitting texts at both ends.
	r, err := t.rangeOf(from, to, editedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	for i, node := 0, r.fromParent; i < splitLevel; i++ {
		if node.Index.Parent == nil {
			return nil, nil, nil, fmt.Errorf("split level %d above root: %w", splitLevel, ErrInvalidTreeOperation)
		}
		node = node.Index.Parent.Value
	}

	// 2. Collect the nodes to remove and the children to merge.
	maxCreatedAtMap := make(map[string]*ticket.Ticket)
	var toBeRemoved, toBeMoved []*TreeNode
	removing := make(map[*TreeNode]bool)
	err = t.tokensBetween(r, func(token index.TreeToken[*TreeNode], ended bool) {
		node := token.Node
		if token.TokenType == index.End {
			return
		}
		parentRemoving := node.Index.Parent != nil && removing[node.Index.Parent.Value]
		if !node.canDelete(editedAt, maxCreatedAtOf(maxCreatedAtMapByActor, node.id.CreatedAt)) && !parentRemoving {
			return
		}
		updateMaxCreatedAt(maxCreatedAtMap, node.id.CreatedAt)
		toBeRemoved = append(toBeRemoved, node)
		removing[node] = true
		if token.TokenType == index.Start && !ended {
			toBeMoved = append(toBeMoved, node.Children()...)
		}
	})
	if err != nil {
		return nil, nil, nil, err
	}

	// 3. Remove.
	var pairs []GCPair
	for _, node := range toBeRemoved {
		if node.remove(editedAt) {
			pairs = append(pairs, GCPair{Parent: t, Child: node})
		}
	}

	// 4. Merge.
	for _, node := range toBeMoved {
		if node.IsRemoved() {
			continue
		}
		if err := node.Index.Parent.RemoveChild(node.Index); err != nil {
			return nil, nil, nil, err
		}
		if err := r.fromParent.Index.Append(node.Index); err != nil {
			return nil, nil, nil, err
		}
	}

	// 5. Split.
	parent, left := r.fromParent, r.fromLeft
	issuedAt := editedAt
	for i := 0; i < splitLevel; i++ {
		issuedAt = issuedAt.Next()
		offset := 0
		if left != parent {
			offset = parent.Index.OffsetOfChild(left.Index) + 1
		}
		if _, err := t.splitElement(parent, offset, issuedAt); err != nil {
			return nil, nil, nil, err
		}
		left, parent = parent, parent.Index.Parent.Value
	}

	// 6. Insert, born removed inside a removed parent.
	left = r.fromLeft
	for _, content := range contents {
		if left == r.fromParent {
			err = r.fromParent.Index.InsertAt(content.Index, 0)
		} else {
			err = r.fromParent.Index.InsertAfter(content.Index, left.Index)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		left = content
		err = index.TraverseNode(content.Index, func(node *index.Node[*TreeNode], depth int) error {
			if r.fromParent.IsRemoved() && node.Value.remove(editedAt) {
				updateMaxCreatedAt(maxCreatedAtMap, node.Value.id.CreatedAt)
				pairs = append(pairs, GCPair{Parent: t, Child: node.Value})
			}
			t.nodeMapByID.Set(node.Value)
			return nil
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	changes := []TreeChange{{
		Type:       TreeChangeContent,
		Actor:      editedAt.ActorID(),
		From:       r.fromIdx,
		To:         r.toIdx,
		FromPath:   r.fromPath,
		ToPath:     r.toPath,
		Value:      contents,
		SplitLevel: splitLevel,
	}}
	return changes, t.withSplitRemoved(pairs), maxCreatedAtMap, nil
}

// StyleByIndex sets attributes in the index range [from, to), used in tests.
func (t *Tree) StyleByIndex(from, to int, attributes map[string]string, editedAt *ticket.Ticket) ([]TreeChange, []GCPair, map[string]*ticket.Ticket, error) {
	fromPos, err := t.FindPos(from)
	if err != nil {
		return nil, nil, nil, err
	}
	toPos, err := t.FindPos(to)
	if err != nil {
		return nil, nil, nil, err
	}
	return t.Style(fromPos, toPos, attributes, editedAt, nil)
}

// Style sets attributes of the elements visible to the editor in range.
func (t *Tree) Style(
	from, to *TreePos,
	attributes map[string]string,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) ([]TreeChange, []GCPair, map[string]*ticket.Ticket, error) {
	var pairs []GCPair
	r, maxCreatedAtMap, err := t.styleNodes(from, to, editedAt, maxCreatedAtMapByActor, func(node *TreeNode) {
		if node.Attrs == nil {
			node.Attrs = NewRHT()
		}
		for _, key := range sortedKeys(attributes) {
			if prev := node.Attrs.Set(key, attributes[key], editedAt); prev != nil {
				pairs = append(pairs, GCPair{Parent: node.Attrs, Child: prev})
			}
		}
	})
	if err != nil {
		return nil, nil, nil, err
	}
	changes := []TreeChange{{
		Type:       TreeChangeStyle,
		Actor:      editedAt.ActorID(),
		From:       r.fromIdx,
		To:         r.toIdx,
		FromPath:   r.fromPath,
		ToPath:     r.toPath,
		Attributes: attributes,
	}}
	return changes, t.withSplitRemoved(pairs), maxCreatedAtMap, nil
}

// RemoveStyle removes attributes of the elements visible to the editor in range.
func (t *Tree) RemoveStyle(
	from, to *TreePos,
	keys []string,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) ([]TreeChange, []GCPair, map[string]*ticket.Ticket, error) {
	var pairs []GCPair
	r, maxCreatedAtMap, err := t.styleNodes(from, to, editedAt, maxCreatedAtMapByActor, func(node *TreeNode) {
		if node.Attrs == nil {
			node.Attrs = NewRHT()
		}
		for _, key := range keys {
			for _, removed := range node.Attrs.Remove(key, editedAt) {
				pairs = append(pairs, GCPair{Parent: node.Attrs, Child: removed})
			}
		}
	})
	if err != nil {
		return nil, nil, nil, err
	}
	changes := []TreeChange{{
		Type:               TreeChangeRemoveStyle,
		Actor:              editedAt.ActorID(),
		From:               r.fromIdx,
		To:                 r.toIdx,
		FromPath:           r.fromPath,
		ToPath:             r.toPath,
		AttributesToRemove: keys,
	}}
	return changes, t.withSplitRemoved(pairs), maxCreatedAtMap, nil
}

func (t *Tree) styleNodes(
	from, to *TreePos,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
	apply func(node *TreeNode),
) (*treeRange, map[string]*ticket.Ticket, error) {
	r, err := t.rangeOf(from, to, editedAt)
	if err != nil {
		return nil, nil, err
	}
	maxCreatedAtMap := make(map[string]*ticket.Ticket)
	seen := make(map[*TreeNode]bool)
	err = t.tokensBetween(r, func(token index.TreeToken[*TreeNode], ended bool) {
		node := token.Node
		if seen[node] {
			return
		}
		seen[node] = true
		if !node.canStyle(editedAt, maxCreatedAtOf(maxCreatedAtMapByActor, node.id.CreatedAt)) {
			return
		}
		updateMaxCreatedAt(maxCreatedAtMap, node.id.CreatedAt)
		apply(node)
	})
	if err != nil {
		return nil, nil, err
	}
	return r, maxCreatedAtMap, nil
}

// GCPairs returns the tombstone nodes and the removed attributes.
func (t *Tree) GCPairs() []GCPair {
	var pairs []GCPair
	_ = index.TraverseNode(t.IndexTree.Root(), func(node *index.Node[*TreeNode], depth int) error {
		if node.Value.IsRemoved() {
			pairs = append(pairs, GCPair{Parent: t, Child: node.Value})
		}
		if node.Value.Attrs != nil {
			pairs = append(pairs, node.Value.Attrs.GCPairs()...)
		}
		return nil
	})
	return pairs
}

func (t *Tree) purge(child GCChild) error {
	node, ok := child.(*TreeNode)
	if !ok {
		return fmt.Errorf("purge %T from tree: %w", child, ErrChildNotFound)
	}
	if parent := node.Index.Parent; parent != nil {
		if err := parent.RemoveChild(node.Index); err != nil {
			return err
		}
	}
	t.nodeMapByID.Delete(node)

	if node.InsPrevID != nil {
		if insPrev := t.findNode(node.InsPrevID); insPrev != nil {
			insPrev.InsNextID = node.InsNextID
		}
	}
	if node.InsNextID != nil {
		if insNext := t.findNode(node.InsNextID); insNext != nil {
			insNext.InsPrevID = node.InsPrevID
		}
	}
	node.InsPrevID, node.InsNextID = nil, nil
	return nil
}

// Marshal returns the JSON form of the tree.
func (t *Tree) Marshal() string {
	return toJSON(t, false)
}

// DeepCopy copies the tree, keeping IDs, tombstones and split links.
func (t *Tree) DeepCopy() (Element, error) {
	tree := NewTree(t.Root().DeepCopy(), t.createdAt)
	tree.elementTimes = t.copyTimes()
	return tree, nil
}
