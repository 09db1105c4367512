package converter_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/converter"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/proxy"
	"github.com/brunokim/causal-doc/ticket"
)

func newRoot() *crdt.Root {
	return crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket))
}

func actor(last byte) ticket.ActorID {
	var id ticket.ActorID
	id[ticket.ActorIDSize-1] = last
	return id
}

// edit runs fn as the next change of id over root.
func edit(t *testing.T, root *crdt.Root, id change.ID, fn func(root *proxy.Object, p *presence.Presence)) *change.Change {
	t.Helper()
	ctx := change.NewContext(id, "edit", root)
	p := presence.New(nil)
	fn(proxy.NewObject(ctx, root.Object()), p)
	if pc := p.Change(); pc != nil {
		ctx.SetPresenceChange(*pc)
	}
	return ctx.ToChange()
}

func roundTrip(t *testing.T, c *change.Change) *change.Change {
	t.Helper()
	pack := change.NewPack("doc", change.NewCheckpoint(3, 1), []*change.Change{c}, nil)
	pack.MinSyncedTicket = ticket.New(7, 1, actor(2))
	bs, err := converter.MarshalChangePack(pack)
	require.NoError(t, err)
	decoded, err := converter.UnmarshalChangePack(bs)
	require.NoError(t, err)

	assert.Equal(t, "doc", decoded.DocumentKey)
	assert.Equal(t, change.NewCheckpoint(3, 1), decoded.Checkpoint)
	assert.Equal(t, pack.MinSyncedTicket.Key(), decoded.MinSyncedTicket.Key())
	require.Len(t, decoded.Changes, 1)
	return decoded.Changes[0]
}

func TestTicketWireForm(t *testing.T) {
	bs, err := json.Marshal(converter.ToTicket(ticket.New(1<<60, 3, actor(1))))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lamport":"1152921504606846976","delimiter":3,"actor_id":"000000000000000000000001"}`, string(bs))

	bs, err = json.Marshal(converter.ToCheckpoint(change.NewCheckpoint(12, 4)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"server_seq":"12","client_seq":4}`, string(bs))

	_, err = converter.FromTicket(&converter.Ticket{Lamport: "x", ActorID: actor(1).String()})
	assert.Error(t, err)
}

func TestChangeRoundTrip(t *testing.T) {
	local := newRoot()
	id := change.InitialID.SetActor(actor(1)).Next()
	c := edit(t, local, id, func(root *proxy.Object, p *presence.Presence) {
		require.NoError(t, root.Set("title", "notes"))
		require.NoError(t, root.Set("when", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, root.Set("meta", map[string]interface{}{"n": 1.5, "ok": true, "raw": []byte{1, 2}, "none": nil}))
		list, err := root.SetNewArray("list")
		require.NoError(t, err)
		require.NoError(t, list.Add(1, int64(2), 3))
		require.NoError(t, list.Move(2, 0))
		require.NoError(t, list.Delete(1))
		text, err := root.SetNewText("text")
		require.NoError(t, err)
		require.NoError(t, text.Edit(0, 0, "hello"))
		require.NoError(t, text.Edit(1, 3, "EY", map[string]string{"b": "1"}))
		require.NoError(t, text.Style(0, 2, map[string]string{"i": "1"}))
		cnt, err := root.SetNewCounter("cnt", crdt.IntegerCnt, 1)
		require.NoError(t, err)
		require.NoError(t, cnt.Increase(2))
		tree, err := root.SetNewTree("tree", &proxy.TreeNode{
			Type:     "doc",
			Children: []proxy.TreeNode{{Type: "p", Attributes: map[string]string{"a": "1"}, Children: []proxy.TreeNode{{Type: "text", Value: "ab"}}}},
		})
		require.NoError(t, err)
		require.NoError(t, tree.Edit(2, 2, nil, 1))
		require.NoError(t, tree.Style(0, 1, map[string]string{"x": "y"}))
		require.NoError(t, tree.RemoveStyle(0, 1, []string{"a"}))
		require.NoError(t, root.Delete("title"))
		p.Set(presence.Data{"name": "ann"})
	})

	decoded := roundTrip(t, c)
	assert.Equal(t, c.ID(), decoded.ID())
	assert.Equal(t, "edit", decoded.Message())
	assert.Equal(t, c.PresenceChange(), decoded.PresenceChange())
	require.Len(t, decoded.Operations(), len(c.Operations()))

	remote := newRoot()
	_, _, err := decoded.Execute(remote, nil, operations.SourceRemote)
	require.NoError(t, err)
	if diff := cmp.Diff(crdt.SortedMarshal(local.Object()), crdt.SortedMarshal(remote.Object())); diff != "" {
		t.Errorf("remote replica (-want, +got):\n%s", diff)
	}
	assert.Equal(t, local.GarbageLen(), remote.GarbageLen())
}

func TestClearPresenceRoundTrip(t *testing.T) {
	c := edit(t, newRoot(), change.InitialID.SetActor(actor(1)).Next(), func(root *proxy.Object, p *presence.Presence) {
		p.Clear()
	})
	decoded := roundTrip(t, c)
	assert.Equal(t, &presence.Change{Type: presence.Clear}, decoded.PresenceChange())
	assert.Empty(t, decoded.Operations())
}

func TestSnapshotKeepsTombstones(t *testing.T) {
	root := newRoot()
	id := change.InitialID.SetActor(actor(1)).Next()
	c := edit(t, root, id, func(obj *proxy.Object, _ *presence.Presence) {
		text, err := obj.SetNewText("text")
		require.NoError(t, err)
		require.NoError(t, text.Edit(0, 0, "abcdef"))
		require.NoError(t, text.Edit(2, 4, ""))
		require.NoError(t, obj.Set("k", 1))
		require.NoError(t, obj.Set("k", 2))
		list, err := obj.SetNewArray("list")
		require.NoError(t, err)
		require.NoError(t, list.Add("x", "y"))
		require.NoError(t, list.Delete(0))
		tree, err := obj.SetNewTree("tree", &proxy.TreeNode{
			Type:     "doc",
			Children: []proxy.TreeNode{{Type: "p", Children: []proxy.TreeNode{{Type: "text", Value: "hello"}}}},
		})
		require.NoError(t, err)
		require.NoError(t, tree.Edit(2, 4, nil, 0))
	})
	require.NotEmpty(t, c.Operations())

	presences := presence.NewMap()
	presences.Store(actor(1).String(), presence.Data{"color": "red"})
	bs, err := converter.SnapshotToBytes(root, presences, 9)
	require.NoError(t, err)
	snapshot, err := converter.BytesToSnapshot(bs)
	require.NoError(t, err)

	assert.Equal(t, int64(9), snapshot.Lamport)
	assert.Equal(t, crdt.SortedMarshal(root.Object()), crdt.SortedMarshal(snapshot.Root.Object()))
	assert.Equal(t, root.GarbageLen(), snapshot.Root.GarbageLen())
	data, ok := snapshot.Presences.Load(actor(1).String())
	require.True(t, ok)
	assert.Equal(t, presence.Data{"color": "red"}, data)

	// Both keep converging after the snapshot, since tombstones and split runs survived.
	next := edit(t, root, id.Next(), func(obj *proxy.Object, _ *presence.Presence) {
		require.NoError(t, obj.GetText("text").Edit(1, 3, "_"))
		require.NoError(t, obj.GetTree("tree").Edit(1, 3, []proxy.TreeNode{{Type: "text", Value: "j"}}, 0))
	})
	_, _, err = next.Execute(snapshot.Root, nil, operations.SourceRemote)
	require.NoError(t, err)
	assert.Equal(t, crdt.SortedMarshal(root.Object()), crdt.SortedMarshal(snapshot.Root.Object()))
	assert.Equal(t, root.GarbageLen(), snapshot.Root.GarbageLen())
}

func TestDecodeErrors(t *testing.T) {
	_, err := converter.FromOperation(&converter.Operation{Type: operations.OpSet})
	assert.ErrorIs(t, err, converter.ErrMissingField)

	tk := converter.ToTicket(ticket.InitialTicket)
	_, err = converter.FromOperation(&converter.Operation{Type: "rename", ParentCreatedAt: tk, ExecutedAt: tk})
	assert.ErrorIs(t, err, converter.ErrUnsupportedOperation)

	_, err = converter.FromElement(&converter.Element{Type: "set", CreatedAt: tk})
	assert.ErrorIs(t, err, converter.ErrUnsupportedElement)

	_, err = converter.UnmarshalChangePack([]byte("{"))
	assert.Error(t, err)
}
