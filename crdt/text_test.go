package crdt_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// textEdit is an edit as it travels between replicas: positions in terms of run IDs, and
// the newest runs the editor could see.
type textEdit struct {
	from, to   *crdt.RGATreeSplitNodePos
	content    string
	attributes map[string]string
	at         *ticket.Ticket
	maxMap     map[string]*ticket.Ticket
}

// editLocal edits the index range [from, to) and returns the edit to send to other
// replicas.
func editLocal(t *testing.T, text *crdt.Text, from, to int, content string, at *ticket.Ticket) textEdit {
	t.Helper()
	fromPos, toPos, err := text.CreateRange(from, to)
	require.NoError(t, err)
	_, maxMap, _, _, err := text.Edit(fromPos, toPos, content, nil, at, nil)
	require.NoError(t, err)
	return textEdit{from: fromPos, to: toPos, content: content, at: at, maxMap: maxMap}
}

func applyRemote(t *testing.T, text *crdt.Text, edit textEdit) []crdt.TextChange {
	t.Helper()
	_, _, _, changes, err := text.Edit(edit.from, edit.to, edit.content, edit.attributes, edit.at, edit.maxMap)
	require.NoError(t, err)
	return changes
}

func TestTextConcurrentDeleteAndInsert(t *testing.T) {
	a, b := newClock(1), newClock(2)
	text1, text2 := newText(), newText()

	applyRemote(t, text2, editLocal(t, text1, 0, 0, "ABC", a.tick()))
	b.sync(a.tick())
	require.Equal(t, "ABC", text2.String())

	// A deletes "AB" while B inserts "X" between "A" and "B".
	fromA := editLocal(t, text1, 0, 2, "", a.tick())
	fromB := editLocal(t, text2, 1, 1, "X", b.tick())
	assert.Equal(t, "C", text1.String())
	assert.Equal(t, "AXBC", text2.String())

	applyRemote(t, text1, fromB)
	applyRemote(t, text2, fromA)

	// B's insert was not visible to A, so it survives.
	assert.Equal(t, "XC", text1.String(), text1.ToTestString())
	assert.Equal(t, "XC", text2.String(), text2.ToTestString())
	assert.Equal(t, text1.Marshal(), text2.Marshal())
	assert.Equal(t, `[{"val":"XC"}]`, text1.Marshal())
}

func TestTextConcurrentInsertsAtSamePosition(t *testing.T) {
	a, b := newClock(1), newClock(2)
	text1, text2 := newText(), newText()
	applyRemote(t, text2, editLocal(t, text1, 0, 0, "ab", a.tick()))
	b.sync(a.tick())

	fromA := editLocal(t, text1, 1, 1, "1", a.tick())
	fromB := editLocal(t, text2, 1, 1, "2", b.tick())
	applyRemote(t, text1, fromB)
	applyRemote(t, text2, fromA)

	assert.Equal(t, "a21b", text1.String())
	assert.Equal(t, text1.String(), text2.String())
}

func TestTextEditChanges(t *testing.T) {
	a := newClock(1)
	text := newText()
	editLocal(t, text, 0, 0, "ABC", a.tick())

	at := a.tick()
	from, to, err := text.CreateRange(0, 2)
	require.NoError(t, err)
	caret, _, pairs, changes, err := text.Edit(from, to, "X", nil, at, nil)
	require.NoError(t, err)

	want := []crdt.TextChange{
		{Type: crdt.TextChangeContent, Actor: at.ActorID(), From: 0, To: 2, Content: "X"},
	}
	if diff := cmp.Diff(want, changes, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
	assert.Len(t, pairs, 1)
	assert.Equal(t, "XC", text.String())

	idx, _, err := text.IndexRangeOf(caret, caret)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestTextStyle(t *testing.T) {
	a := newClock(1)
	text := newText()
	editLocal(t, text, 0, 0, "hello world", a.tick())

	at := a.tick()
	from, to, err := text.CreateRange(0, 5)
	require.NoError(t, err)
	_, pairs, changes, err := text.Style(from, to, map[string]string{"b": "1"}, at, nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	want := []crdt.TextChange{
		{Type: crdt.TextChangeStyle, Actor: at.ActorID(), From: 0, To: 5, Attributes: map[string]string{"b": "1"}},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
	assert.Equal(t, `[{"attrs":{"b":"1"},"val":"hello"},{"val":" world"}]`, text.Marshal())

	// Restyling replaces the attribute; the old value is not garbage since it was live.
	from, to, err = text.CreateRange(0, 11)
	require.NoError(t, err)
	_, pairs, _, err = text.Style(from, to, map[string]string{"b": "1"}, a.tick(), nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, `[{"attrs":{"b":"1"},"val":"hello world"}]`, text.Marshal())
}

func TestTextUTF16(t *testing.T) {
	a := newClock(1)
	text := newText()
	editLocal(t, text, 0, 0, "a😀b", a.tick())
	assert.Equal(t, 4, text.Len())

	editLocal(t, text, 1, 3, "", a.tick())
	assert.Equal(t, "ab", text.String())
}

func TestTextGarbageCollect(t *testing.T) {
	a := newClock(1)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)
	tText := a.tick()
	text := crdt.NewText(crdt.NewRGATreeSplit(), tText)
	obj.Set("text", text, tText)
	root := crdt.NewRoot(obj)

	editLocal(t, text, 0, 0, "hello", a.tick())
	tDelete := a.tick()
	from, to, err := text.CreateRange(1, 4)
	require.NoError(t, err)
	_, _, pairs, _, err := text.Edit(from, to, "", nil, tDelete, nil)
	require.NoError(t, err)
	for _, pair := range pairs {
		root.RegisterGCPair(pair)
	}
	assert.Equal(t, 1, root.GarbageLen())
	assert.Contains(t, text.ToTestString(), `"ell"}`)

	n, err := root.GarbageCollect(tText)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = root.GarbageCollect(tDelete)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, root.GarbageLen())
	assert.Equal(t, "ho", text.String())
	assert.Len(t, text.Nodes(), 2)
}

func TestTextAppendNode(t *testing.T) {
	a := newClock(1)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)
	tText := a.tick()
	text := crdt.NewText(crdt.NewRGATreeSplit(), tText)
	obj.Set("text", text, tText)
	root := crdt.NewRoot(obj)

	appendRun := func(value string, removedAt *ticket.Ticket) {
		t.Helper()
		id := crdt.NewRGATreeSplitNodeID(a.tick(), 0)
		require.NoError(t, text.AppendNode(id, crdt.NewTextValue(value, nil), removedAt, nil))
	}
	appendRun("ab", nil)
	tRemoved := a.tick()
	appendRun("cd", tRemoved)
	assert.Equal(t, "ab", text.String())

	// The last run is purged, and appending continues after the live one.
	for _, pair := range text.GCPairs() {
		root.RegisterGCPair(pair)
	}
	n, err := root.GarbageCollect(tRemoved)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	appendRun("ef", nil)
	assert.Equal(t, "abef", text.String())

	// Runs inserted by edits after the last append are skipped over.
	editLocal(t, text, 4, 4, "!", a.tick())
	appendRun("gh", nil)
	assert.Equal(t, "abef!gh", text.String())
	assert.Len(t, text.Nodes(), 4)
}
