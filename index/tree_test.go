package index_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/index"
)

type testValue struct {
	text    string
	removed bool
}

func (v *testValue) IsRemoved() bool { return v.removed }
func (v *testValue) Length() int     { return len(v.text) }
func (v *testValue) String() string  { return v.text }

type node = index.Node[*testValue]

func text(s string) *node {
	return index.NewNode(index.DefaultTextType, &testValue{text: s})
}

func elem(typ string, children ...*node) *node {
	return index.NewNode(typ, &testValue{}, children...)
}

// <root><p>ab</p><p><b>cd</b></p></root>
func makeTree() (*index.Tree[*testValue], map[string]*node) {
	ab, cd := text("ab"), text("cd")
	b := elem("b", cd)
	p1, p2 := elem("p", ab), elem("p", b)
	root := elem(index.DefaultRootType, p1, p2)
	return index.NewTree(root), map[string]*node{
		"ab": ab, "cd": cd, "b": b, "p1": p1, "p2": p2, "root": root,
	}
}

func TestSizes(t *testing.T) {
	tree, nodes := makeTree()
	assert.Equal(t, 10, tree.Size())
	assert.Equal(t, 4, nodes["p1"].PaddedLength())
	assert.Equal(t, 4, nodes["p2"].Length)
	assert.Equal(t, "<root><p>ab</p><p><b>cd</b></p></root>", index.ToXML(tree.Root()))

	nodes["ab"].Value.removed = true
	nodes["ab"].UpdateAncestorsSize()
	assert.Equal(t, 0, nodes["p1"].Length)
	assert.Equal(t, 8, tree.Size())
	assert.Equal(t, "<root><p></p><p><b>cd</b></p></root>", index.ToXML(tree.Root()))

	// A removed element stops the propagation of its descendants' sizes.
	nodes["p2"].Value.removed = true
	nodes["p2"].UpdateAncestorsSize()
	assert.Equal(t, 2, tree.Size())
	nodes["cd"].Value.removed = true
	nodes["cd"].UpdateAncestorsSize()
	assert.Equal(t, 0, nodes["b"].Length)
	assert.Equal(t, 2, nodes["p2"].Length)
	assert.Equal(t, 2, tree.Size())

	assert.Equal(t, 2, tree.Root().UpdateDescendantsSize()-index.ElementPaddingSize)
}

func TestFindTreePos(t *testing.T) {
	tree, nodes := makeTree()
	tests := []struct {
		index  int
		node   string
		offset int
	}{
		{0, "root", 0},
		{1, "ab", 0},
		{2, "ab", 1},
		{3, "ab", 2},
		{4, "root", 1},
		{5, "p2", 0},
		{6, "cd", 0},
		{7, "cd", 1},
		{8, "cd", 2},
		{9, "p2", 1},
		{10, "root", 2},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.index), func(t *testing.T) {
			pos, err := tree.FindTreePos(test.index)
			require.NoError(t, err)
			assert.Equal(t, nodes[test.node], pos.Node)
			assert.Equal(t, test.offset, pos.Offset)

			got, err := tree.IndexOf(pos)
			require.NoError(t, err)
			assert.Equal(t, test.index, got)
		})
	}

	_, err := tree.FindTreePos(11)
	assert.ErrorIs(t, err, index.ErrInvalidRange)
}

func TestFindTreePosWithoutTextPreference(t *testing.T) {
	tree, nodes := makeTree()
	pos, err := tree.FindTreePos(3, false)
	require.NoError(t, err)
	assert.Equal(t, nodes["p1"], pos.Node)
	assert.Equal(t, 1, pos.Offset)
}

func TestPaths(t *testing.T) {
	tree, _ := makeTree()
	tests := []struct {
		index int
		path  []int
	}{
		{0, []int{0}},
		{1, []int{0, 0}},
		{2, []int{0, 1}},
		{4, []int{1}},
		{5, []int{1, 0}},
		{7, []int{1, 0, 1}},
		{10, []int{2}},
	}
	for _, test := range tests {
		path, err := tree.IndexToPath(test.index)
		require.NoError(t, err)
		if diff := cmp.Diff(test.path, path); diff != "" {
			t.Errorf("IndexToPath(%d) (-want, +got):\n%s", test.index, diff)
		}
		idx, err := tree.PathToIndex(test.path)
		require.NoError(t, err)
		assert.Equal(t, test.index, idx, "PathToIndex(%v)", test.path)
	}

	_, err := tree.PathToIndex([]int{3, 0})
	assert.ErrorIs(t, err, index.ErrInvalidPath)
}

func TestTokensBetween(t *testing.T) {
	tree, _ := makeTree()
	var got []string
	err := tree.TokensBetween(1, 7, func(token index.TreeToken[*testValue], ended bool) {
		got = append(got, fmt.Sprintf("%s:%s:%t", token.TokenType, token.Node, ended))
	})
	require.NoError(t, err)
	want := []string{"Text:ab:false", "End::true", "Start::false", "Start::false", "Text:cd:false"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens (-want, +got):\n%s", diff)
	}

	err = tree.TokensBetween(5, 1, func(index.TreeToken[*testValue], bool) {})
	assert.ErrorIs(t, err, index.ErrInvalidRange)
}

func TestInsertAndRemoveChild(t *testing.T) {
	tree, nodes := makeTree()
	x := text("x")
	require.NoError(t, nodes["p1"].InsertAfter(x, nodes["ab"]))
	assert.Equal(t, 11, tree.Size())
	assert.Equal(t, "<root><p>abx</p><p><b>cd</b></p></root>", index.ToXML(tree.Root()))

	p3 := elem("p")
	require.NoError(t, tree.Root().InsertAt(p3, 0))
	assert.Equal(t, 13, tree.Size())
	offset, err := tree.Root().FindOffset(nodes["p1"])
	require.NoError(t, err)
	assert.Equal(t, 1, offset)

	require.NoError(t, nodes["p1"].RemoveChild(x))
	assert.Equal(t, 12, tree.Size())
	assert.ErrorIs(t, nodes["p1"].RemoveChild(x), index.ErrChildNotFound)
	assert.ErrorIs(t, x.Append(text("y")), index.ErrInvalidMethodCallForTextNode)

	assert.True(t, tree.Root().IsAncestorOf(nodes["cd"]))
	assert.False(t, nodes["p1"].IsAncestorOf(nodes["cd"]))
}

func TestTraverse(t *testing.T) {
	tree, nodes := makeTree()
	nodes["cd"].Value.removed = true
	nodes["cd"].UpdateAncestorsSize()

	var live []string
	index.Traverse(tree, func(n *index.Node[*testValue], depth int) {
		live = append(live, fmt.Sprintf("%s@%d", n.Type, depth))
	})
	assert.Equal(t, []string{"text@2", "p@1", "b@2", "p@1", "root@0"}, live)

	count := 0
	require.NoError(t, index.TraverseNode(tree.Root(), func(*index.Node[*testValue], int) error {
		count++
		return nil
	}))
	assert.Equal(t, 6, count)
}
