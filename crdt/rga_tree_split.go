package crdt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/tidwall/btree"

	"github.com/brunokim/causal-doc/splay"
	"github.com/brunokim/causal-doc/ticket"
)

// +----------------+
// | IDs and values |
// +----------------+

// RGATreeSplitNodeID identifies a run of text: the ticket of the edit that inserted it,
// and the offset of the run inside the inserted content, since runs split as they are
// edited.
type RGATreeSplitNodeID struct {
	createdAt *ticket.Ticket
	offset    int
}

// NewRGATreeSplitNodeID creates a node ID.
func NewRGATreeSplitNodeID(createdAt *ticket.Ticket, offset int) *RGATreeSplitNodeID {
	return &RGATreeSplitNodeID{createdAt: createdAt, offset: offset}
}

// CreatedAt returns the ticket of the insertion.
func (id *RGATreeSplitNodeID) CreatedAt() *ticket.Ticket { return id.createdAt }

// Offset returns the offset inside the inserted content.
func (id *RGATreeSplitNodeID) Offset() int { return id.offset }

// Compare orders IDs by creation, then by offset.
func (id *RGATreeSplitNodeID) Compare(other *RGATreeSplitNodeID) int {
	if cmp := id.createdAt.Compare(other.createdAt); cmp != 0 {
		return cmp
	}
	switch {
	case id.offset > other.offset:
		return 1
	case id.offset < other.offset:
		return -1
	}
	return 0
}

// Split returns the ID of the run starting offset units later.
func (id *RGATreeSplitNodeID) Split(offset int) *RGATreeSplitNodeID {
	return NewRGATreeSplitNodeID(id.createdAt, id.offset+offset)
}

// IDString identifies the run among every node of the document.
func (id *RGATreeSplitNodeID) IDString() string {
	return id.createdAt.Key() + ":" + strconv.Itoa(id.offset)
}

func (id *RGATreeSplitNodeID) toTestString() string {
	return id.createdAt.ToTestString() + ":" + strconv.Itoa(id.offset)
}

// RGATreeSplitNodePos is a position relative to a run: relativeOffset units after the
// start of the run identified by id. Positions survive concurrent splits, since the
// absolute offset can be found in whatever run covers it.
type RGATreeSplitNodePos struct {
	id             *RGATreeSplitNodeID
	relativeOffset int
}

// NewRGATreeSplitNodePos creates a position.
func NewRGATreeSplitNodePos(id *RGATreeSplitNodeID, relativeOffset int) *RGATreeSplitNodePos {
	return &RGATreeSplitNodePos{id: id, relativeOffset: relativeOffset}
}

// ID returns the run of the position.
func (pos *RGATreeSplitNodePos) ID() *RGATreeSplitNodeID { return pos.id }

// RelativeOffset returns the offset inside the run.
func (pos *RGATreeSplitNodePos) RelativeOffset() int { return pos.relativeOffset }

func (pos *RGATreeSplitNodePos) absoluteID() *RGATreeSplitNodeID {
	return pos.id.Split(pos.relativeOffset)
}

// Equal returns whether both positions address the same point.
func (pos *RGATreeSplitNodePos) Equal(other *RGATreeSplitNodePos) bool {
	return pos.absoluteID().Compare(other.absoluteID()) == 0
}

// TextValue is a run of text with its style attributes. Contents are kept in UTF-16
// code units, the unit of every index in a Text.
type TextValue struct {
	value []uint16
	attrs *RHT
}

// NewTextValue creates a run from a string.
func NewTextValue(value string, attrs *RHT) *TextValue {
	if attrs == nil {
		attrs = NewRHT()
	}
	return &TextValue{
		value: utf16.Encode([]rune(value)),
		attrs: attrs,
	}
}

// Len returns the length in UTF-16 code units.
func (v *TextValue) Len() int {
	return len(v.value)
}

func (v *TextValue) String() string {
	return string(utf16.Decode(v.value))
}

// Attrs returns the style attributes of the run.
func (v *TextValue) Attrs() *RHT {
	return v.attrs
}

// split cuts the value at offset, keeping the left part and returning the right one.
func (v *TextValue) split(offset int) *TextValue {
	right := &TextValue{
		value: append([]uint16(nil), v.value[offset:]...),
		attrs: v.attrs.DeepCopy(),
	}
	v.value = v.value[:offset]
	return right
}

func (v *TextValue) deepCopy() *TextValue {
	return &TextValue{
		value: append([]uint16(nil), v.value...),
		attrs: v.attrs.DeepCopy(),
	}
}

func (v *TextValue) marshal() string {
	if v.attrs.Len() == 0 {
		return `{"val":"` + EscapeString(v.String()) + `"}`
	}
	return `{"attrs":` + v.attrs.Marshal() + `,"val":"` + EscapeString(v.String()) + `"}`
}

// +------+
// | Node |
// +------+

// RGATreeSplitNode is a run of text in the list.
type RGATreeSplitNode struct {
	id        *RGATreeSplitNodeID
	indexNode *splay.Node[*RGATreeSplitNode]
	value     *TextValue
	removedAt *ticket.Ticket

	prev *RGATreeSplitNode
	next *RGATreeSplitNode
	// insPrev and insNext link the runs split from the same insertion.
	insPrev *RGATreeSplitNode
	insNext *RGATreeSplitNode
}

func newRGATreeSplitNode(id *RGATreeSplitNodeID, value *TextValue) *RGATreeSplitNode {
	node := &RGATreeSplitNode{id: id, value: value}
	node.indexNode = splay.NewNode(node)
	return node
}

// ID returns the ID of the run.
func (n *RGATreeSplitNode) ID() *RGATreeSplitNodeID { return n.id }

// Value returns the contents of the run.
func (n *RGATreeSplitNode) Value() *TextValue { return n.value }

// CreatedAt returns the ticket of the insertion.
func (n *RGATreeSplitNode) CreatedAt() *ticket.Ticket { return n.id.createdAt }

// RemovedAt returns the ticket of the removal, if removed.
func (n *RGATreeSplitNode) RemovedAt() *ticket.Ticket { return n.removedAt }

// IsRemoved returns whether the run is a tombstone.
func (n *RGATreeSplitNode) IsRemoved() bool { return n.removedAt != nil }

// InsPrevID returns the ID of the run this one was split from, if any.
func (n *RGATreeSplitNode) InsPrevID() *RGATreeSplitNodeID {
	if n.insPrev == nil {
		return nil
	}
	return n.insPrev.id
}

// IDString identifies the run among every node of the document.
func (n *RGATreeSplitNode) IDString() string {
	return n.id.IDString()
}

// Len returns the visible length of the run, zero for tombstones.
func (n *RGATreeSplitNode) Len() int {
	if n.removedAt != nil {
		return 0
	}
	return n.value.Len()
}

func (n *RGATreeSplitNode) contentLen() int {
	return n.value.Len()
}

func (n *RGATreeSplitNode) String() string {
	return n.value.String()
}

// split cuts the run at offset, returning the new right run, not yet linked.
func (n *RGATreeSplitNode) split(offset int) *RGATreeSplitNode {
	right := newRGATreeSplitNode(n.id.Split(offset), n.value.split(offset))
	right.removedAt = n.removedAt
	return right
}

// canDelete returns whether the editor that issued editedAt could see this run, knowing
// the newest run it saw from the run's actor.
func (n *RGATreeSplitNode) canDelete(editedAt, maxCreatedAt *ticket.Ticket) bool {
	return !n.CreatedAt().After(maxCreatedAt) &&
		(n.removedAt == nil || editedAt.After(n.removedAt))
}

func (n *RGATreeSplitNode) canStyle(editedAt, maxCreatedAt *ticket.Ticket) bool {
	return !n.CreatedAt().After(maxCreatedAt) &&
		(n.removedAt == nil || editedAt.After(n.removedAt))
}

func (n *RGATreeSplitNode) remove(removedAt *ticket.Ticket) {
	n.removedAt = removedAt
}

func (n *RGATreeSplitNode) toTestString() string {
	s := fmt.Sprintf("[%s %q]", n.id.toTestString(), n.value.String())
	if n.removedAt != nil {
		return "{" + s[1:len(s)-1] + "}"
	}
	return s
}

// +-----------+
// | Text list |
// +-----------+

// RGATreeSplit is a Replicated Growable Array of text runs. Runs are linked in causal
// insertion order, indexed by position in a splay tree, and by ID in an ordered map
// that finds the run covering any absolute offset.
type RGATreeSplit struct {
	initialHead *RGATreeSplitNode
	treeByIndex *splay.Tree[*RGATreeSplitNode]
	treeByID    *btree.BTreeG[*RGATreeSplitNode]
	// splitRemoved holds tombstones split off since the last takeSplitRemoved.
	splitRemoved []*RGATreeSplitNode
	// tail is the last run added by appendNode. Later inserts may follow it.
	tail *RGATreeSplitNode
}

func lessRGATreeSplitNode(a, b *RGATreeSplitNode) bool {
	return a.id.Compare(b.id) < 0
}

// NewRGATreeSplit creates an empty list.
func NewRGATreeSplit() *RGATreeSplit {
	head := newRGATreeSplitNode(NewRGATreeSplitNodeID(ticket.InitialTicket, 0), NewTextValue("", nil))
	treeByID := btree.NewBTreeGOptions(lessRGATreeSplitNode, btree.Options{NoLocks: true})
	treeByID.Set(head)
	return &RGATreeSplit{
		initialHead: head,
		treeByIndex: splay.NewTree(head.indexNode),
		treeByID:    treeByID,
	}
}

// Len returns the visible length.
func (s *RGATreeSplit) Len() int {
	return s.treeByIndex.Len()
}

// Nodes returns every run after the head, including tombstones.
func (s *RGATreeSplit) Nodes() []*RGATreeSplitNode {
	var nodes []*RGATreeSplitNode
	for node := s.initialHead.next; node != nil; node = node.next {
		nodes = append(nodes, node)
	}
	return nodes
}

func (s *RGATreeSplit) String() string {
	var sb strings.Builder
	for node := s.initialHead.next; node != nil; node = node.next {
		if !node.IsRemoved() {
			sb.WriteString(node.String())
		}
	}
	return sb.String()
}

// ToTestString returns every run, with tombstones in braces.
func (s *RGATreeSplit) ToTestString() string {
	var sb strings.Builder
	for node := s.initialHead; node != nil; node = node.next {
		sb.WriteString(node.toTestString())
	}
	return sb.String()
}

// FindNodePos returns the position of index. At run boundaries, the position is at the
// end of the left run.
func (s *RGATreeSplit) FindNodePos(index int) (*RGATreeSplitNodePos, error) {
	indexNode, offset, err := s.treeByIndex.Find(index)
	if err != nil {
		return nil, fmt.Errorf("find position %d: %w", index, ErrInvalidPosition)
	}
	return NewRGATreeSplitNodePos(indexNode.Value().id, offset), nil
}

// CreateRange returns the positions of the index range [from, to).
func (s *RGATreeSplit) CreateRange(from, to int) (*RGATreeSplitNodePos, *RGATreeSplitNodePos, error) {
	if from < 0 || from > to || to > s.Len() {
		return nil, nil, fmt.Errorf("range [%d, %d) of length %d: %w", from, to, s.Len(), ErrInvalidPosition)
	}
	fromPos, err := s.FindNodePos(from)
	if err != nil {
		return nil, nil, err
	}
	if from == to {
		return fromPos, fromPos, nil
	}
	toPos, err := s.FindNodePos(to)
	if err != nil {
		return nil, nil, err
	}
	return fromPos, toPos, nil
}

// findFloorNode returns the run of id's insertion that covers id's offset.
func (s *RGATreeSplit) findFloorNode(id *RGATreeSplitNodeID) *RGATreeSplitNode {
	var floor *RGATreeSplitNode
	s.treeByID.Descend(&RGATreeSplitNode{id: id}, func(node *RGATreeSplitNode) bool {
		floor = node
		return false
	})
	if floor == nil || !floor.id.createdAt.Equal(id.createdAt) {
		return nil
	}
	return floor
}

// findFloorNodePreferToLeft is like findFloorNode, but when id is exactly at the start of
// a split run it returns the run to its left, where the position was created.
func (s *RGATreeSplit) findFloorNodePreferToLeft(id *RGATreeSplitNodeID) (*RGATreeSplitNode, error) {
	node := s.findFloorNode(id)
	if node == nil {
		return nil, fmt.Errorf("run %s: %w", id.toTestString(), ErrNodeNotFound)
	}
	if id.offset > 0 && node.id.offset == id.offset && node.insPrev != nil {
		return node.insPrev, nil
	}
	return node, nil
}

// findNodeWithSplit splits the run at pos, and returns the runs to its left and right.
// Runs inserted concurrently at the same point by newer edits are kept to the left.
func (s *RGATreeSplit) findNodeWithSplit(pos *RGATreeSplitNodePos, editedAt *ticket.Ticket) (*RGATreeSplitNode, *RGATreeSplitNode, error) {
	absoluteID := pos.absoluteID()
	node, err := s.findFloorNodePreferToLeft(absoluteID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.splitNode(node, absoluteID.offset-node.id.offset); err != nil {
		return nil, nil, err
	}
	for node.next != nil && node.next.CreatedAt().After(editedAt) {
		node = node.next
	}
	return node, node.next, nil
}

func (s *RGATreeSplit) splitNode(node *RGATreeSplitNode, offset int) error {
	if offset < 0 || offset > node.contentLen() {
		return fmt.Errorf("split %s at %d: %w", node.id.toTestString(), offset, ErrInvalidPosition)
	}
	if offset == 0 || offset == node.contentLen() {
		return nil
	}
	right := node.split(offset)
	s.treeByIndex.UpdateWeight(node.indexNode)
	s.insertAfter(node, right)
	if right.IsRemoved() {
		s.splitRemoved = append(s.splitRemoved, right)
	}

	right.insNext = node.insNext
	if node.insNext != nil {
		node.insNext.insPrev = right
	}
	right.insPrev = node
	node.insNext = right
	return nil
}

// takeSplitRemoved returns the tombstones split off by the last edit, which must be
// collected like the others.
func (s *RGATreeSplit) takeSplitRemoved() []*RGATreeSplitNode {
	nodes := s.splitRemoved
	s.splitRemoved = nil
	return nodes
}

func (s *RGATreeSplit) insertAfter(prev, node *RGATreeSplitNode) *RGATreeSplitNode {
	node.prev = prev
	node.next = prev.next
	if prev.next != nil {
		prev.next.prev = node
	}
	prev.next = node
	s.treeByID.Set(node)
	s.treeByIndex.InsertAfter(prev.indexNode, node.indexNode)
	return node
}

// findBetween returns the runs from 'from' up to 'to', exclusive. A nil 'to' goes up to
// the end.
func (s *RGATreeSplit) findBetween(from, to *RGATreeSplitNode) []*RGATreeSplitNode {
	var nodes []*RGATreeSplitNode
	for node := from; node != nil && node != to; node = node.next {
		nodes = append(nodes, node)
	}
	return nodes
}

// indexOf returns the visible index where node starts.
func (s *RGATreeSplit) indexOf(node *RGATreeSplitNode) int {
	return s.treeByIndex.IndexOf(node.indexNode)
}

// PosToIndex converts a position into a visible index. If preferToLeft, a position at
// the start of a split run is resolved in the run to its left.
func (s *RGATreeSplit) PosToIndex(pos *RGATreeSplitNodePos, preferToLeft bool) (int, error) {
	absoluteID := pos.absoluteID()
	var node *RGATreeSplitNode
	if preferToLeft {
		n, err := s.findFloorNodePreferToLeft(absoluteID)
		if err != nil {
			return 0, err
		}
		node = n
	} else {
		node = s.findFloorNode(absoluteID)
		if node == nil {
			return 0, fmt.Errorf("run %s: %w", absoluteID.toTestString(), ErrNodeNotFound)
		}
	}
	index := s.indexOf(node)
	if !node.IsRemoved() {
		index += absoluteID.offset - node.id.offset
	}
	return index, nil
}

// edit replaces the range [from, to) with value. Only runs visible to the editor are
// deleted: for remote edits, maxCreatedAtMapByActor holds the newest run the editor saw
// from each actor, and a nil map means a local edit that sees everything.
//
// Returns the position after the inserted content, the newest deleted run by actor, the
// deleted runs and the changes, with indexes as if applied in sequence.
func (s *RGATreeSplit) edit(
	from, to *RGATreeSplitNodePos,
	value *TextValue,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) (*RGATreeSplitNodePos, map[string]*ticket.Ticket, []*RGATreeSplitNode, []TextChange, error) {
	// 1. Split runs at both ends, so that the range covers whole runs.
	toLeft, toRight, err := s.findNodeWithSplit(to, editedAt)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	fromLeft, fromRight, err := s.findNodeWithSplit(from, editedAt)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// 2. Delete the visible runs in range.
	candidates := s.findBetween(fromRight, toRight)
	changes, maxCreatedAtMap, removed := s.deleteNodes(candidates, editedAt, maxCreatedAtMapByActor)

	caretID := toLeft.id
	caretOffset := toLeft.contentLen()
	if toRight != nil {
		caretID, caretOffset = toRight.id, 0
	}
	caret := NewRGATreeSplitNodePos(caretID, caretOffset)

	// 3. Insert the new content after the left boundary.
	if value != nil && value.Len() > 0 {
		index := s.indexOf(fromLeft) + fromLeft.Len()
		inserted := s.insertAfter(fromLeft, newRGATreeSplitNode(NewRGATreeSplitNodeID(editedAt, 0), value))
		change := TextChange{
			Type:       TextChangeContent,
			Actor:      editedAt.ActorID(),
			From:       index,
			To:         index,
			Content:    value.String(),
			Attributes: value.attrs.Elements(),
		}
		if n := len(changes); n > 0 && changes[n-1].From == index && changes[n-1].Content == "" {
			changes[n-1].Content = change.Content
			changes[n-1].Attributes = change.Attributes
		} else {
			changes = append(changes, change)
		}
		caret = NewRGATreeSplitNodePos(inserted.id, inserted.contentLen())
	}
	return caret, maxCreatedAtMap, removed, changes, nil
}

func maxCreatedAtOf(maxCreatedAtMapByActor map[string]*ticket.Ticket, createdAt *ticket.Ticket) *ticket.Ticket {
	if maxCreatedAtMapByActor == nil {
		return ticket.MaxTicket
	}
	if maxCreatedAt, ok := maxCreatedAtMapByActor[createdAt.ActorIDHex()]; ok {
		return maxCreatedAt
	}
	return ticket.InitialTicket
}

func updateMaxCreatedAt(maxCreatedAtMap map[string]*ticket.Ticket, createdAt *ticket.Ticket) {
	actor := createdAt.ActorIDHex()
	if prev, ok := maxCreatedAtMap[actor]; !ok || createdAt.After(prev) {
		maxCreatedAtMap[actor] = createdAt
	}
}

// deleteNodes tombstones the candidates the editor could see. Consecutive deleted runs
// are reported as a single change.
func (s *RGATreeSplit) deleteNodes(
	candidates []*RGATreeSplitNode,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) ([]TextChange, map[string]*ticket.Ticket, []*RGATreeSplitNode) {
	var changes []TextChange
	var removed []*RGATreeSplitNode
	maxCreatedAtMap := make(map[string]*ticket.Ticket)

	var run []*RGATreeSplitNode
	flush := func() {
		if len(run) == 0 {
			return
		}
		from := s.indexOf(run[0])
		length := 0
		for _, node := range run {
			length += node.Len()
			node.remove(editedAt)
			s.treeByIndex.UpdateWeight(node.indexNode)
		}
		if length > 0 {
			changes = append(changes, TextChange{
				Type:  TextChangeContent,
				Actor: editedAt.ActorID(),
				From:  from,
				To:    from + length,
			})
		}
		run = nil
	}
	for _, node := range candidates {
		if !node.canDelete(editedAt, maxCreatedAtOf(maxCreatedAtMapByActor, node.CreatedAt())) {
			flush()
			continue
		}
		updateMaxCreatedAt(maxCreatedAtMap, node.CreatedAt())
		removed = append(removed, node)
		run = append(run, node)
	}
	flush()
	return changes, maxCreatedAtMap, removed
}

// style sets attributes on the runs in range that the editor could see. Returns the
// newest styled run by actor, the replaced attributes and the changes.
func (s *RGATreeSplit) style(
	from, to *RGATreeSplitNodePos,
	attributes map[string]string,
	editedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) (map[string]*ticket.Ticket, []GCPair, []TextChange, error) {
	_, toRight, err := s.findNodeWithSplit(to, editedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	_, fromRight, err := s.findNodeWithSplit(from, editedAt)
	if err != nil {
		return nil, nil, nil, err
	}

	maxCreatedAtMap := make(map[string]*ticket.Ticket)
	var styled []*RGATreeSplitNode
	for _, node := range s.findBetween(fromRight, toRight) {
		if !node.canStyle(editedAt, maxCreatedAtOf(maxCreatedAtMapByActor, node.CreatedAt())) {
			continue
		}
		updateMaxCreatedAt(maxCreatedAtMap, node.CreatedAt())
		styled = append(styled, node)
	}

	var pairs []GCPair
	var changes []TextChange
	for _, node := range styled {
		if node.IsRemoved() {
			continue
		}
		index := s.indexOf(node)
		changes = append(changes, TextChange{
			Type:       TextChangeStyle,
			Actor:      editedAt.ActorID(),
			From:       index,
			To:         index + node.Len(),
			Attributes: attributes,
		})
		for _, key := range sortedKeys(attributes) {
			if prev := node.value.attrs.Set(key, attributes[key], editedAt); prev != nil {
				pairs = append(pairs, GCPair{Parent: node.value.attrs, Child: prev})
			}
		}
	}
	return maxCreatedAtMap, pairs, changes, nil
}

// purge physically removes a tombstone run.
func (s *RGATreeSplit) purge(node *RGATreeSplitNode) error {
	if node == s.initialHead || node.prev == nil {
		return fmt.Errorf("purge %s: %w", node.id.toTestString(), ErrChildNotFound)
	}
	s.treeByIndex.DeleteRange(node.prev.indexNode, nextIndexNode(node))
	s.treeByID.Delete(node)

	node.prev.next = node.next
	if node.next != nil {
		node.next.prev = node.prev
	}
	node.prev, node.next = nil, nil

	if node.insPrev != nil {
		node.insPrev.insNext = node.insNext
	}
	if node.insNext != nil {
		node.insNext.insPrev = node.insPrev
	}
	node.insPrev, node.insNext = nil, nil
	return nil
}

func nextIndexNode(node *RGATreeSplitNode) *splay.Node[*RGATreeSplitNode] {
	if node.next == nil {
		return nil
	}
	return node.next.indexNode
}

// deepCopy copies the list, keeping IDs, tombstones and split links.
func (s *RGATreeSplit) deepCopy() *RGATreeSplit {
	copied := NewRGATreeSplit()
	copies := map[*RGATreeSplitNode]*RGATreeSplitNode{s.initialHead: copied.initialHead}
	prev := copied.initialHead
	for node := s.initialHead.next; node != nil; node = node.next {
		c := newRGATreeSplitNode(node.id, node.value.deepCopy())
		c.removedAt = node.removedAt
		prev = copied.insertAfter(prev, c)
		copies[node] = c
	}
	for node, c := range copies {
		if node.insPrev != nil {
			c.insPrev = copies[node.insPrev]
		}
		if node.insNext != nil {
			c.insNext = copies[node.insNext]
		}
	}
	return copied
}

// appendNode adds a run at the end, used when decoding snapshots. insPrevID links it to
// the run it was split from, which must precede it.
func (s *RGATreeSplit) appendNode(id *RGATreeSplitNodeID, value *TextValue, removedAt *ticket.Ticket, insPrevID *RGATreeSplitNodeID) error {
	last := s.tail
	if last == nil || last.prev == nil {
		// Purged runs are unlinked.
		last = s.initialHead
	}
	for last.next != nil {
		last = last.next
	}
	node := newRGATreeSplitNode(id, value)
	node.removedAt = removedAt
	s.insertAfter(last, node)
	s.tail = node
	if insPrevID != nil {
		insPrev := s.findFloorNode(insPrevID)
		if insPrev == nil || insPrev.id.Compare(insPrevID) != 0 {
			return fmt.Errorf("split link %s: %w", insPrevID.toTestString(), ErrNodeNotFound)
		}
		insPrev.insNext = node
		node.insPrev = insPrev
	}
	return nil
}
