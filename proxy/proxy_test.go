package proxy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/proxy"
	"github.com/brunokim/causal-doc/ticket"
)

func newRoot() *crdt.Root {
	return crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket))
}

// update runs fn against a fresh document and returns the change it made, after
// checking that replaying the change elsewhere gives the same document.
func update(t *testing.T, fn func(root *proxy.Object)) (*change.Change, *crdt.Root) {
	t.Helper()
	var actor ticket.ActorID
	actor[ticket.ActorIDSize-1] = 1
	root := newRoot()
	ctx := change.NewContext(change.InitialID.SetActor(actor).Next(), "", root)
	fn(proxy.NewObject(ctx, root.Object()))

	c := ctx.ToChange()
	replica := newRoot()
	_, _, err := c.Execute(replica, nil, operations.SourceRemote)
	require.NoError(t, err)
	assert.Equal(t, root.Object().Marshal(), replica.Object().Marshal())
	return c, root
}

func TestObject(t *testing.T) {
	_, root := update(t, func(root *proxy.Object) {
		require.NoError(t, root.Set("name", "doc"))
		require.NoError(t, root.Set("meta", map[string]interface{}{
			"tags":  []interface{}{"a", "b"},
			"count": 2,
		}))
		obj, err := root.SetNewObject("empty")
		require.NoError(t, err)
		require.NoError(t, obj.Set("x", true))

		assert.ErrorIs(t, root.Set("a.b", 1), proxy.ErrInvalidKey)
		assert.ErrorIs(t, root.Set("bad", map[string]interface{}{"c.d": 1}), proxy.ErrInvalidKey)
		assert.ErrorIs(t, root.Set("bad", struct{}{}), crdt.ErrUnsupportedType)
		assert.False(t, root.Has("bad"))

		assert.Equal(t, "doc", root.GetPrimitive("name").Value())
		assert.Equal(t, 2, root.GetObject("meta").GetArray("tags").Len())
		assert.Nil(t, root.GetText("name"))
		require.NoError(t, root.Delete("name"))
		require.NoError(t, root.Delete("missing"))
	})
	json := root.Object().Marshal()
	assert.False(t, gjson.Get(json, "name").Exists())
	assert.Equal(t, "b", gjson.Get(json, "meta.tags.1").String())
	assert.Equal(t, int64(2), gjson.Get(json, "meta.count").Int())
	assert.True(t, gjson.Get(json, "empty.x").Bool())
}

func TestArray(t *testing.T) {
	c, root := update(t, func(root *proxy.Object) {
		arr, err := root.SetNewArray("list")
		require.NoError(t, err)
		require.NoError(t, arr.Add(1, 2, 3))
		require.NoError(t, arr.InsertAt(0, 0))
		// [0,1,2,3] -> [1,2,0,3]
		require.NoError(t, arr.Move(0, 3))
		require.NoError(t, arr.Delete(3))
		obj, err := arr.AddNewObject()
		require.NoError(t, err)
		require.NoError(t, obj.Set("k", "v"))

		assert.ErrorIs(t, arr.Delete(10), proxy.ErrInvalidRange)
		assert.ErrorIs(t, arr.InsertAt(-1, 0), proxy.ErrInvalidRange)
	})
	assert.Equal(t, `{"list":[1,2,0,{"k":"v"}]}`, root.Object().Marshal())
	// One operation per call: set, 3 adds, insert, move, delete, add, set.
	assert.Len(t, c.Operations(), 9)
}

func TestText(t *testing.T) {
	c, root := update(t, func(root *proxy.Object) {
		text, err := root.SetNewText("text")
		require.NoError(t, err)
		require.NoError(t, text.Edit(0, 0, "the cat sat"))
		require.NoError(t, text.Style(0, 3, map[string]string{"bold": "true"}))
		require.NoError(t, text.Replace("the hat sat down"))
		assert.Equal(t, "the hat sat down", text.String())

		assert.ErrorIs(t, text.Edit(3, 2, "x"), proxy.ErrInvalidRange)
		assert.ErrorIs(t, text.Edit(0, 100, "x"), proxy.ErrInvalidRange)
	})
	// set, edit, style, and one edit per hunk of the replacement.
	assert.Len(t, c.Operations(), 5)
	assert.Equal(t, "true", gjson.Get(root.Object().Marshal(), "text.0.attrs.bold").String())
}

func TestCounter(t *testing.T) {
	_, root := update(t, func(root *proxy.Object) {
		cnt, err := root.SetNewCounter("cnt", crdt.LongCnt, 10)
		require.NoError(t, err)
		require.NoError(t, cnt.Increase(5))
		require.NoError(t, cnt.Increase(int64(-1)))
		assert.ErrorIs(t, cnt.Increase("x"), crdt.ErrUnsupportedType)
		assert.Equal(t, int64(14), cnt.Value())
	})
	assert.Equal(t, `{"cnt":14}`, root.Object().Marshal())
}

func TestTree(t *testing.T) {
	update(t, func(root *proxy.Object) {
		tree, err := root.SetNewTree("doc", &proxy.TreeNode{
			Type: "doc",
			Children: []proxy.TreeNode{{
				Type:     "p",
				Children: []proxy.TreeNode{{Type: proxy.TextNodeType, Value: "hello"}},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, "<doc><p>hello</p></doc>", tree.ToXML())

		require.NoError(t, tree.Edit(3, 3, nil, 1))
		assert.Equal(t, "<doc><p>he</p><p>llo</p></doc>", tree.ToXML())
		require.NoError(t, tree.EditByPath([]int{1, 3}, []int{1, 3}, []proxy.TreeNode{{Type: proxy.TextNodeType, Value: "!"}}, 0))
		assert.Equal(t, "<doc><p>he</p><p>llo!</p></doc>", tree.ToXML())
		require.NoError(t, tree.Style(0, 4, map[string]string{"align": "left"}))
		require.NoError(t, tree.RemoveStyle(0, 4, []string{"align"}))
		assert.Equal(t, "<doc><p>he</p><p>llo!</p></doc>", tree.ToXML())

		mixed := []proxy.TreeNode{{Type: "p"}, {Type: proxy.TextNodeType, Value: "x"}}
		assert.ErrorIs(t, tree.Edit(1, 1, mixed, 0), proxy.ErrInvalidContent)
		assert.ErrorIs(t, tree.Edit(1, 1, []proxy.TreeNode{{Type: proxy.TextNodeType}}, 0), proxy.ErrInvalidContent)
		assert.ErrorIs(t, tree.Edit(4, 1, nil, 0), proxy.ErrInvalidRange)
	})
}

func TestTreeSplitSkipsTickets(t *testing.T) {
	var actor ticket.ActorID
	root := newRoot()
	ctx := change.NewContext(change.InitialID.SetActor(actor).Next(), "", root)
	obj := proxy.NewObject(ctx, root.Object())

	tree, err := obj.SetNewTree("t", &proxy.TreeNode{
		Type:     "root",
		Children: []proxy.TreeNode{{Type: "p", Children: []proxy.TreeNode{{Type: proxy.TextNodeType, Value: "ab"}}}},
	})
	require.NoError(t, err)
	require.NoError(t, tree.Edit(2, 2, nil, 1))
	op := ctx.ToChange().Operations()[1]

	// The split element took the ticket after the operation, which is never issued again.
	next := ctx.IssueTimeTicket()
	assert.Equal(t, op.ExecutedAt().Delimiter()+2, next.Delimiter())
}
