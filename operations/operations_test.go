package operations_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/ticket"
)

type clock struct {
	actor   ticket.ActorID
	lamport int64
}

func newClock(last byte) *clock {
	var actor ticket.ActorID
	actor[ticket.ActorIDSize-1] = last
	return &clock{actor: actor}
}

func (c *clock) tick() *ticket.Ticket {
	c.lamport++
	return ticket.New(c.lamport, 0, c.actor)
}

func newRoot() *crdt.Root {
	return crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket))
}

func prim(t *testing.T, value interface{}, createdAt *ticket.Ticket) *crdt.Primitive {
	t.Helper()
	p, err := crdt.NewPrimitive(value, createdAt)
	require.NoError(t, err)
	return p
}

// execute runs op on root, failing the test on error.
func execute(t *testing.T, root *crdt.Root, op operations.Operation, source operations.Source) ([]operations.OpInfo, operations.Operation) {
	t.Helper()
	infos, reverse, err := op.Execute(root, source)
	require.NoError(t, err)
	return infos, reverse
}

var ignoreTreeNodes = cmpopts.IgnoreFields(operations.OpInfo{}, "TreeNodes")

func TestSetAndReverse(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	t1 := c.tick()
	infos, reverse := execute(t, root, operations.NewSet(ticket.InitialTicket, "a", prim(t, 1, t1), t1), operations.SourceLocal)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpSet, Path: "$", Key: "a", Value: "1"}}, infos)
	require.IsType(t, &operations.Remove{}, reverse)
	assert.Equal(t, t1, reverse.(*operations.Remove).CreatedAt())

	t2 := c.tick()
	_, reverse = execute(t, root, operations.NewSet(ticket.InitialTicket, "a", prim(t, "two", t2), t2), operations.SourceLocal)
	assert.Equal(t, `{"a":"two"}`, root.Object().Marshal())
	assert.Equal(t, 1, root.GarbageLen())

	// Restoring the previous value needs fresh tickets.
	set, ok := reverse.(*operations.Set)
	require.True(t, ok)
	require.NoError(t, set.RenewValue(c.tick))
	execute(t, root, set, operations.SourceUndoRedo)
	assert.Equal(t, `{"a":1}`, root.Object().Marshal())
	assert.Equal(t, 2, root.GarbageLen())
}

func TestRemoveAndReverse(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tObj := c.tick()
	execute(t, root, operations.NewSet(ticket.InitialTicket, "obj", crdt.NewObject(crdt.NewElementRHT(), tObj), tObj), operations.SourceLocal)
	tName := c.tick()
	execute(t, root, operations.NewSet(tObj, "name", prim(t, "doc", tName), tName), operations.SourceLocal)

	infos, reverse := execute(t, root, operations.NewRemove(ticket.InitialTicket, tObj, c.tick()), operations.SourceLocal)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpRemove, Path: "$", Key: "obj"}}, infos)
	assert.Equal(t, `{}`, root.Object().Marshal())

	set := reverse.(*operations.Set)
	require.NoError(t, set.RenewValue(c.tick))
	execute(t, root, set, operations.SourceUndoRedo)
	assert.Equal(t, `{"obj":{"name":"doc"}}`, root.Object().Marshal())
	assert.True(t, set.ExecutedAt().After(tName))
	assert.True(t, root.FindByCreatedAt(tObj).IsRemoved())

	// Removing it again from an outdated replica changes nothing visible.
	infos, _ = execute(t, root, operations.NewRemove(ticket.InitialTicket, tObj, c.tick()), operations.SourceRemote)
	assert.Empty(t, infos)
	assert.Equal(t, "doc", gjson.Get(root.Object().Marshal(), "obj.name").String())
}

func TestArrayOperations(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tList := c.tick()
	execute(t, root, operations.NewSet(ticket.InitialTicket, "list", crdt.NewArray(crdt.NewRGATreeList(), tList), tList), operations.SourceLocal)

	prev := ticket.InitialTicket
	var created []*ticket.Ticket
	for i, v := range []string{"a", "b", "c"} {
		tv := c.tick()
		infos, reverse := execute(t, root, operations.NewAdd(tList, prev, prim(t, v, tv), tv), operations.SourceLocal)
		assert.Nil(t, reverse)
		assert.Equal(t, []operations.OpInfo{{Type: operations.OpAdd, Path: "$.list", Index: i, Value: `"` + v + `"`}}, infos)
		prev = tv
		created = append(created, tv)
	}

	// Move "c" to the front.
	infos, _ := execute(t, root, operations.NewMove(tList, ticket.InitialTicket, created[2], c.tick()), operations.SourceLocal)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpMove, Path: "$.list", Index: 0, PreviousIndex: 2}}, infos)
	assert.Equal(t, `{"list":["c","a","b"]}`, root.Object().Marshal())

	infos, reverse := execute(t, root, operations.NewRemove(tList, created[0], c.tick()), operations.SourceLocal)
	assert.Nil(t, reverse)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpRemove, Path: "$.list", Index: 1}}, infos)
	assert.Equal(t, `{"list":["c","b"]}`, root.Object().Marshal())
}

func TestIncreaseAndReverse(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tCnt := c.tick()
	counter, err := crdt.NewCounter(crdt.IntegerCnt, 10, tCnt)
	require.NoError(t, err)
	execute(t, root, operations.NewSet(ticket.InitialTicket, "cnt", counter, tCnt), operations.SourceLocal)

	tInc := c.tick()
	infos, reverse := execute(t, root, operations.NewIncrease(tCnt, prim(t, 5, tInc), tInc), operations.SourceLocal)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpIncrease, Path: "$.cnt", Value: "5"}}, infos)
	assert.Equal(t, `{"cnt":15}`, root.Object().Marshal())

	reverse.SetExecutedAt(c.tick())
	execute(t, root, reverse, operations.SourceUndoRedo)
	assert.Equal(t, `{"cnt":10}`, root.Object().Marshal())
}

func TestEditRecordsVisibleRuns(t *testing.T) {
	local, remote := newClock(1), newClock(2)
	root, replica := newRoot(), newRoot()

	tText := local.tick()
	for _, r := range []*crdt.Root{root, replica} {
		execute(t, r, operations.NewSet(ticket.InitialTicket, "text", crdt.NewText(crdt.NewRGATreeSplit(), tText), tText), operations.SourceRemote)
	}
	text := root.FindByCreatedAt(tText).(*crdt.Text)

	from, to, err := text.CreateRange(0, 0)
	require.NoError(t, err)
	tHello := local.tick()
	hello := operations.NewEdit(tText, from, to, nil, "hello", nil, tHello)
	infos, _ := execute(t, root, hello, operations.SourceLocal)
	assert.Equal(t, []operations.OpInfo{{Type: operations.OpEdit, Path: "$.text", From: 0, To: 0, Value: "hello"}}, infos)
	assert.NotNil(t, hello.MaxCreatedAtMapByActor())

	// Delete "ell" locally before the remote insertion arrives.
	from, to, err = text.CreateRange(1, 4)
	require.NoError(t, err)
	del := operations.NewEdit(tText, from, to, nil, "", nil, local.tick())
	execute(t, root, del, operations.SourceLocal)
	assert.Contains(t, del.MaxCreatedAtMapByActor(), tHello.ActorIDHex())

	execute(t, replica, hello, operations.SourceRemote)
	remote.lamport = tHello.Lamport()
	replicaText := replica.FindByCreatedAt(tText).(*crdt.Text)
	from, to, err = replicaText.CreateRange(2, 2)
	require.NoError(t, err)
	insert := operations.NewEdit(tText, from, to, nil, "X", nil, remote.tick())
	execute(t, replica, insert, operations.SourceLocal)

	execute(t, root, insert, operations.SourceRemote)
	execute(t, replica, del, operations.SourceRemote)
	assert.Equal(t, "hXo", text.String())
	assert.Equal(t, text.Marshal(), replicaText.Marshal())
	assert.Equal(t, root.GarbageLen(), replica.GarbageLen())
}

func TestStyleInfo(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tText := c.tick()
	execute(t, root, operations.NewSet(ticket.InitialTicket, "text", crdt.NewText(crdt.NewRGATreeSplit(), tText), tText), operations.SourceLocal)
	text := root.FindByCreatedAt(tText).(*crdt.Text)
	from, to, _ := text.CreateRange(0, 0)
	execute(t, root, operations.NewEdit(tText, from, to, nil, "abc", nil, c.tick()), operations.SourceLocal)

	from, to, _ = text.CreateRange(1, 3)
	attrs := map[string]string{"bold": "true"}
	infos, _ := execute(t, root, operations.NewStyle(tText, from, to, nil, attrs, c.tick()), operations.SourceLocal)
	want := []operations.OpInfo{{Type: operations.OpStyle, Path: "$.text", From: 1, To: 3, Attributes: attrs}}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Errorf("style infos (-want, +got):\n%s", diff)
	}
}

func TestTreeOperations(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tTree := c.tick()
	treeRoot := crdt.NewTreeNode(crdt.NewTreeNodeID(tTree, 0), "doc", nil)
	execute(t, root, operations.NewSet(ticket.InitialTicket, "tree", crdt.NewTree(treeRoot, tTree), tTree), operations.SourceLocal)
	tree := root.FindByCreatedAt(tTree).(*crdt.Tree)

	tP, tText := c.tick(), c.tick()
	p := crdt.NewTreeNode(crdt.NewTreeNodeID(tP, 0), "p", nil)
	require.NoError(t, p.Append(crdt.NewTreeNode(crdt.NewTreeNodeID(tText, 0), "text", nil, "ab")))
	pos, err := tree.FindPos(0)
	require.NoError(t, err)
	op := operations.NewTreeEdit(tTree, pos, pos, []*crdt.TreeNode{p}, 0, nil, tP)
	infos, _ := execute(t, root, op, operations.SourceLocal)
	want := []operations.OpInfo{{Type: operations.OpTreeEdit, Path: "$.tree"}}
	ignorePaths := cmpopts.IgnoreFields(operations.OpInfo{}, "FromPath", "ToPath")
	if diff := cmp.Diff(want, infos, ignoreTreeNodes, ignorePaths, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tree edit infos (-want, +got):\n%s", diff)
	}
	require.Len(t, infos[0].TreeNodes, 1)
	assert.Equal(t, "p", infos[0].TreeNodes[0].Type())
	assert.Equal(t, "<doc><p>ab</p></doc>", tree.ToXML())
	// The tree holds copies of the contents.
	assert.Nil(t, op.Contents()[0].Index.Parent)

	from, err := tree.FindPos(0)
	require.NoError(t, err)
	to, err := tree.FindPos(4)
	require.NoError(t, err)
	style := operations.NewTreeStyle(tTree, from, to, map[string]string{"bold": "true"}, []string{"italic"}, nil, c.tick())
	infos, _ = execute(t, root, style, operations.SourceLocal)
	require.Len(t, infos, 2)
	assert.Equal(t, operations.OpTreeStyle, infos[0].Type)
	assert.Equal(t, []string{"italic"}, infos[1].AttributesToRemove)
	assert.Equal(t, `<doc><p bold="true">ab</p></doc>`, tree.ToXML())
}

func TestUndoRedoSkipsRemovedTargets(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tObj := c.tick()
	execute(t, root, operations.NewSet(ticket.InitialTicket, "obj", crdt.NewObject(crdt.NewElementRHT(), tObj), tObj), operations.SourceLocal)
	execute(t, root, operations.NewRemove(ticket.InitialTicket, tObj, c.tick()), operations.SourceLocal)

	tv := c.tick()
	infos, reverse, err := operations.NewSet(tObj, "k", prim(t, 1, tv), tv).Execute(root, operations.SourceUndoRedo)
	require.NoError(t, err)
	assert.Nil(t, infos)
	assert.Nil(t, reverse)

	// Remote operations still apply inside removed containers.
	tv = c.tick()
	_, _, err = operations.NewSet(tObj, "k", prim(t, 1, tv), tv).Execute(root, operations.SourceRemote)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, root.FindByCreatedAt(tObj).Marshal())
}

func TestExecuteErrors(t *testing.T) {
	c := newClock(1)
	root := newRoot()

	tv := c.tick()
	_, _, err := operations.NewSet(c.tick(), "k", prim(t, 1, tv), tv).Execute(root, operations.SourceRemote)
	assert.ErrorIs(t, err, operations.ErrNotFound)

	tInc := c.tick()
	_, _, err = operations.NewIncrease(ticket.InitialTicket, prim(t, 1, tInc), tInc).Execute(root, operations.SourceRemote)
	assert.ErrorIs(t, err, operations.ErrNotApplicableDataType)
}
