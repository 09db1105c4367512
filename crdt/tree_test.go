package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

func editTree(t *testing.T, tree *crdt.Tree, from, to int, splitLevel int, at *ticket.Ticket, contents ...*crdt.TreeNode) []crdt.GCPair {
	t.Helper()
	_, pairs, _, err := tree.EditByIndex(from, to, contents, splitLevel, at, nil)
	require.NoError(t, err)
	size, want := treeSizes(tree)
	require.Equal(t, want, size, "size of %s", tree.ToXML())
	return pairs
}

func TestTreeEdit(t *testing.T) {
	a := newClock(1)
	tree := newTree()

	tp := a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp))
	assert.Equal(t, "<root><p></p></root>", tree.ToXML())
	assert.Equal(t, 2, tree.Size())

	tab := a.tick()
	editTree(t, tree, 1, 1, 0, tab, textNode("ab", tab))
	assert.Equal(t, "<root><p>ab</p></root>", tree.ToXML())
	assert.Equal(t, 4, tree.Size())

	// Inserting inside a text splits it.
	tx := a.tick()
	editTree(t, tree, 2, 2, 0, tx, textNode("X", tx))
	assert.Equal(t, "<root><p>aXb</p></root>", tree.ToXML())

	pairs := editTree(t, tree, 2, 3, 0, a.tick())
	assert.Equal(t, "<root><p>ab</p></root>", tree.ToXML())
	assert.Len(t, pairs, 1)
	assert.Equal(t, 4, tree.Size())

	json := tree.Marshal()
	assert.Equal(t, "p", gjson.Get(json, "children.0.type").String())
	assert.Equal(t, "a", gjson.Get(json, "children.0.children.0.value").String())
	assert.Equal(t, "b", gjson.Get(json, "children.0.children.1.value").String())
}

func TestTreeSplitAndMerge(t *testing.T) {
	a := newClock(1)
	tree := newTree()
	tp := a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree, 1, 1, 0, tab, textNode("ab", tab))

	// Splitting one level at "a|b", like pressing enter.
	editTree(t, tree, 2, 2, 1, a.tick())
	assert.Equal(t, "<root><p>a</p><p>b</p></root>", tree.ToXML())
	assert.Equal(t, 6, tree.Size())

	path, err := tree.IndexToPath(4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, path)

	// Deleting the boundary between both paragraphs merges them.
	editTree(t, tree, 2, 4, 0, a.tick())
	assert.Equal(t, "<root><p>ab</p></root>", tree.ToXML())
	assert.Equal(t, 4, tree.Size())
}

func TestTreeSplitLevelAboveRoot(t *testing.T) {
	a := newClock(1)
	tree := newTree()
	tp := a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp))

	_, _, _, err := tree.EditByIndex(1, 1, nil, 2, a.tick(), nil)
	assert.ErrorIs(t, err, crdt.ErrInvalidTreeOperation)
}

func TestTreeDeleteElement(t *testing.T) {
	a := newClock(1)
	tree := newTree()
	tp, tq := a.tick(), a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp), element("q", tq))
	tab := a.tick()
	editTree(t, tree, 1, 1, 0, tab, textNode("ab", tab))
	assert.Equal(t, "<root><p>ab</p><q></q></root>", tree.ToXML())

	// Removing the element removes its contents too.
	pairs := editTree(t, tree, 0, 4, 0, a.tick())
	assert.Equal(t, "<root><q></q></root>", tree.ToXML())
	assert.Len(t, pairs, 2)
	assert.Len(t, tree.GCPairs(), 2)
}

func TestTreeStyle(t *testing.T) {
	a := newClock(1)
	tree := newTree()
	tp := a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree, 1, 1, 0, tab, textNode("ab", tab))

	_, _, _, err := tree.StyleByIndex(0, 4, map[string]string{"bold": "true"}, a.tick())
	require.NoError(t, err)
	assert.Equal(t, `<root><p bold="true">ab</p></root>`, tree.ToXML())
	assert.Equal(t, "true", gjson.Get(tree.Marshal(), "children.0.attributes.bold").String())

	from, err := tree.FindPos(0)
	require.NoError(t, err)
	to, err := tree.FindPos(4)
	require.NoError(t, err)
	changes, pairs, _, err := tree.RemoveStyle(from, to, []string{"bold"}, a.tick(), nil)
	require.NoError(t, err)
	assert.Equal(t, `<root><p>ab</p></root>`, tree.ToXML())
	assert.Len(t, pairs, 1)
	if assert.Len(t, changes, 1) {
		assert.Equal(t, crdt.TreeChangeRemoveStyle, changes[0].Type)
		assert.Equal(t, []string{"bold"}, changes[0].AttributesToRemove)
	}
}

func TestTreeConcurrentInsertsConverge(t *testing.T) {
	a, b := newClock(1), newClock(2)
	tree1 := newTree()
	tp := a.tick()
	editTree(t, tree1, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree1, 1, 1, 0, tab, textNode("ab", tab))
	copied, err := tree1.DeepCopy()
	require.NoError(t, err)
	tree2 := copied.(*crdt.Tree)
	b.sync(tab)

	posA, err := tree1.FindPos(2)
	require.NoError(t, err)
	posB, err := tree2.FindPos(2)
	require.NoError(t, err)

	tx, ty := a.tick(), b.tick()
	x := textNode("X", tx)
	y := textNode("Y", ty)
	_, _, mapA, err := tree1.Edit(posA, posA, []*crdt.TreeNode{x}, 0, tx, nil)
	require.NoError(t, err)
	_, _, mapB, err := tree2.Edit(posB, posB, []*crdt.TreeNode{y}, 0, ty, nil)
	require.NoError(t, err)

	_, _, _, err = tree1.Edit(posB, posB, []*crdt.TreeNode{y.DeepCopy()}, 0, ty, mapB)
	require.NoError(t, err)
	_, _, _, err = tree2.Edit(posA, posA, []*crdt.TreeNode{x.DeepCopy()}, 0, tx, mapA)
	require.NoError(t, err)

	assert.Equal(t, "<root><p>aYXb</p></root>", tree1.ToXML())
	assert.Equal(t, tree1.ToXML(), tree2.ToXML())
	assert.Equal(t, 6, tree1.Size())
	assert.Equal(t, 6, tree2.Size())
}

func TestTreeConcurrentInsertsInsideText(t *testing.T) {
	a, b := newClock(1), newClock(2)
	tree1 := newTree()
	tp := a.tick()
	editTree(t, tree1, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree1, 1, 1, 0, tab, textNode("abcd", tab))
	copied, err := tree1.DeepCopy()
	require.NoError(t, err)
	tree2 := copied.(*crdt.Tree)
	b.sync(tab)

	// A inserts "X" after "a" while B inserts "Y" after "b": both split the same text.
	posA, err := tree1.FindPos(2)
	require.NoError(t, err)
	posB, err := tree2.FindPos(3)
	require.NoError(t, err)
	tx, ty := a.tick(), b.tick()
	_, _, mapA, err := tree1.Edit(posA, posA, []*crdt.TreeNode{textNode("X", tx)}, 0, tx, nil)
	require.NoError(t, err)
	_, _, mapB, err := tree2.Edit(posB, posB, []*crdt.TreeNode{textNode("Y", ty)}, 0, ty, nil)
	require.NoError(t, err)

	_, _, _, err = tree1.Edit(posB, posB, []*crdt.TreeNode{textNode("Y", ty)}, 0, ty, mapB)
	require.NoError(t, err)
	_, _, _, err = tree2.Edit(posA, posA, []*crdt.TreeNode{textNode("X", tx)}, 0, tx, mapA)
	require.NoError(t, err)

	assert.Equal(t, "<root><p>aXbYcd</p></root>", tree1.ToXML())
	assert.Equal(t, tree1.ToXML(), tree2.ToXML())
	for _, tree := range []*crdt.Tree{tree1, tree2} {
		size, want := treeSizes(tree)
		assert.Equal(t, 8, size)
		assert.Equal(t, want, size)
	}
}

func TestTreeConcurrentDeleteAndInsert(t *testing.T) {
	a, b := newClock(1), newClock(2)
	tree1 := newTree()
	tp := a.tick()
	editTree(t, tree1, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree1, 1, 1, 0, tab, textNode("abc", tab))
	copied, err := tree1.DeepCopy()
	require.NoError(t, err)
	tree2 := copied.(*crdt.Tree)
	b.sync(tab)

	// A deletes "ab" while B inserts "X" between "a" and "b".
	fromA, err := tree1.FindPos(1)
	require.NoError(t, err)
	toA, err := tree1.FindPos(3)
	require.NoError(t, err)
	posB, err := tree2.FindPos(2)
	require.NoError(t, err)

	tDel, tx := a.tick(), b.tick()
	_, _, mapA, err := tree1.Edit(fromA, toA, nil, 0, tDel, nil)
	require.NoError(t, err)
	x := textNode("X", tx)
	_, _, mapB, err := tree2.Edit(posB, posB, []*crdt.TreeNode{x}, 0, tx, nil)
	require.NoError(t, err)

	_, _, _, err = tree1.Edit(posB, posB, []*crdt.TreeNode{x.DeepCopy()}, 0, tx, mapB)
	require.NoError(t, err)
	_, _, _, err = tree2.Edit(fromA, toA, nil, 0, tDel, mapA)
	require.NoError(t, err)

	assert.Equal(t, "<root><p>Xc</p></root>", tree1.ToXML())
	assert.Equal(t, tree1.ToXML(), tree2.ToXML())
}

func TestTreeGarbageCollect(t *testing.T) {
	a := newClock(1)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)
	tTree := a.tick()
	tree := crdt.NewTree(crdt.NewTreeNode(crdt.NewTreeNodeID(tTree, 0), "root", nil), tTree)
	obj.Set("t", tree, tTree)
	root := crdt.NewRoot(obj)

	tp := a.tick()
	editTree(t, tree, 0, 0, 0, tp, element("p", tp))
	tab := a.tick()
	editTree(t, tree, 1, 1, 0, tab, textNode("abc", tab))
	tDel := a.tick()
	for _, pair := range editTree(t, tree, 2, 3, 0, tDel) {
		root.RegisterGCPair(pair)
	}
	assert.Equal(t, 1, root.GarbageLen())

	n, err := root.GarbageCollect(tDel)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, tree.GCPairs())
	assert.Equal(t, "<root><p>ac</p></root>", tree.ToXML())

	// Positions around the purged node still resolve.
	tx := a.tick()
	editTree(t, tree, 2, 2, 0, tx, textNode("X", tx))
	assert.Equal(t, "<root><p>aXc</p></root>", tree.ToXML())
}
