package crdt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brunokim/causal-doc/ticket"
)

// TextChangeType is the kind of a TextChange.
type TextChangeType int

const (
	// TextChangeContent replaces a range with content, possibly empty.
	TextChangeContent TextChangeType = iota
	// TextChangeStyle sets attributes on a range.
	TextChangeStyle
)

// TextChange is a change in the visible text, in UTF-16 indexes. Changes of a single
// edit are meant to be applied in sequence.
type TextChange struct {
	Type       TextChangeType
	Actor      ticket.ActorID
	From       int
	To         int
	Content    string
	Attributes map[string]string
}

// Text is a rich text: a sequence of runs, each carrying style attributes.
type Text struct {
	elementTimes
	rgaTreeSplit *RGATreeSplit
}

// NewText creates a text with the given runs.
func NewText(rgaTreeSplit *RGATreeSplit, createdAt *ticket.Ticket) *Text {
	return &Text{
		elementTimes: elementTimes{createdAt: createdAt},
		rgaTreeSplit: rgaTreeSplit,
	}
}

// Len returns the length in UTF-16 code units.
func (t *Text) Len() int {
	return t.rgaTreeSplit.Len()
}

// String returns the visible text, without attributes.
func (t *Text) String() string {
	return t.rgaTreeSplit.String()
}

// Nodes returns every run, including tombstones.
func (t *Text) Nodes() []*RGATreeSplitNode {
	return t.rgaTreeSplit.Nodes()
}

// ToTestString returns every run, with tombstones in braces.
func (t *Text) ToTestString() string {
	return t.rgaTreeSplit.ToTestString()
}

// CreateRange returns the positions of the index range [from, to).
func (t *Text) CreateRange(from, to int) (*RGATreeSplitNodePos, *RGATreeSplitNodePos, error) {
	return t.rgaTreeSplit.CreateRange(from, to)
}

// IndexRangeOf converts positions back to visible indexes.
func (t *Text) IndexRangeOf(from, to *RGATreeSplitNodePos) (int, int, error) {
	fromIdx, err := t.rgaTreeSplit.PosToIndex(from, false)
	if err != nil {
		return 0, 0, err
	}
	if from.Equal(to) {
		return fromIdx, fromIdx, nil
	}
	toIdx, err := t.rgaTreeSplit.PosToIndex(to, true)
	if err != nil {
		return 0, 0, err
	}
	return fromIdx, toIdx, nil
}

// Edit replaces the range [from, to) with content styled by attributes. A nil
// maxCreatedAtMapByActor denotes a local edit.
//
// Returns the caret after the edit, the newest deleted run by actor, the deleted runs as
// GC pairs, and the changes.
func (t *Text) Edit(
	from, to *RGATreeSplitNodePos,
	content string,
	attributes map[string]string,
	executedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) (*RGATreeSplitNodePos, map[string]*ticket.Ticket, []GCPair, []TextChange, error) {
	var value *TextValue
	if content != "" {
		value = NewTextValue(content, nil)
		for _, key := range sortedKeys(attributes) {
			value.attrs.Set(key, attributes[key], executedAt)
		}
	}
	caret, maxCreatedAtMap, removed, changes, err := t.rgaTreeSplit.edit(from, to, value, executedAt, maxCreatedAtMapByActor)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("edit text %s: %w", t.createdAt.ToTestString(), err)
	}
	pairs := make([]GCPair, 0, len(removed))
	for _, node := range append(removed, t.rgaTreeSplit.takeSplitRemoved()...) {
		pairs = append(pairs, GCPair{Parent: t, Child: node})
	}
	return caret, maxCreatedAtMap, pairs, changes, nil
}

// Style sets attributes on the range [from, to).
func (t *Text) Style(
	from, to *RGATreeSplitNodePos,
	attributes map[string]string,
	executedAt *ticket.Ticket,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
) (map[string]*ticket.Ticket, []GCPair, []TextChange, error) {
	maxCreatedAtMap, pairs, changes, err := t.rgaTreeSplit.style(from, to, attributes, executedAt, maxCreatedAtMapByActor)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("style text %s: %w", t.createdAt.ToTestString(), err)
	}
	for _, node := range t.rgaTreeSplit.takeSplitRemoved() {
		pairs = append(pairs, GCPair{Parent: t, Child: node})
	}
	return maxCreatedAtMap, pairs, changes, nil
}

// GCPairs returns the tombstone runs and the removed attributes of live runs.
func (t *Text) GCPairs() []GCPair {
	var pairs []GCPair
	for _, node := range t.rgaTreeSplit.Nodes() {
		if node.IsRemoved() {
			pairs = append(pairs, GCPair{Parent: t, Child: node})
		}
		pairs = append(pairs, node.value.attrs.GCPairs()...)
	}
	return pairs
}

func (t *Text) purge(child GCChild) error {
	node, ok := child.(*RGATreeSplitNode)
	if !ok {
		return fmt.Errorf("purge %T from text: %w", child, ErrChildNotFound)
	}
	return t.rgaTreeSplit.purge(node)
}

// AppendNode adds a run at the end, used when decoding snapshots.
func (t *Text) AppendNode(id *RGATreeSplitNodeID, value *TextValue, removedAt *ticket.Ticket, insPrevID *RGATreeSplitNodeID) error {
	return t.rgaTreeSplit.appendNode(id, value, removedAt, insPrevID)
}

// Marshal returns the JSON form of the text.
func (t *Text) Marshal() string {
	return toJSON(t, false)
}

// marshalValue writes the live runs, merging neighbours with the same attributes so that
// the view does not depend on where each replica split its runs.
func (t *Text) marshalValue() string {
	var runs []*TextValue
	var lastAttrs string
	for _, node := range t.rgaTreeSplit.Nodes() {
		if node.IsRemoved() || node.value.Len() == 0 {
			continue
		}
		attrs := node.value.attrs.Marshal()
		if len(runs) > 0 && attrs == lastAttrs {
			last := runs[len(runs)-1]
			last.value = append(last.value, node.value.value...)
			continue
		}
		runs = append(runs, &TextValue{
			value: append([]uint16(nil), node.value.value...),
			attrs: node.value.attrs,
		})
		lastAttrs = attrs
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i, run := range runs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(run.marshal())
	}
	sb.WriteString("]")
	return sb.String()
}

// DeepCopy copies the text, keeping run IDs and tombstones.
func (t *Text) DeepCopy() (Element, error) {
	return &Text{
		elementTimes: t.copyTimes(),
		rgaTreeSplit: t.rgaTreeSplit.deepCopy(),
	}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
