package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

func TestObjectSet(t *testing.T) {
	a, b := newClock(1), newClock(2)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)

	t1 := a.tick()
	v1 := prim(t, "first", t1)
	assert.Empty(t, obj.Set("k", v1, t1))

	t2 := a.tick()
	v2 := prim(t, "second", t2)
	removed := obj.Set("k", v2, t2)
	assert.Equal(t, []crdt.Element{v1}, removed)
	assert.True(t, v1.IsRemoved())
	assert.Equal(t, `{"k":"second"}`, obj.Marshal())

	// A concurrent write with an older ticket loses, but is kept as a tombstone.
	t3 := b.tick()
	v3 := prim(t, "stale", t3)
	removed = obj.Set("k", v3, t3)
	assert.Equal(t, []crdt.Element{v3}, removed)
	assert.True(t, v3.IsRemoved())
	assert.Equal(t, v2, obj.Get("k"))
	assert.Equal(t, v3, obj.GetByCreatedAt(t3))
	assert.Len(t, obj.RHTNodes(), 3)

	key, ok := obj.SubPathOf(t3)
	assert.True(t, ok)
	assert.Equal(t, "k", key)
}

func TestObjectKeys(t *testing.T) {
	a := newClock(1)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)
	for _, key := range []string{"z", "a", "m"} {
		tk := a.tick()
		obj.Set(key, prim(t, key, tk), tk)
	}
	obj.Delete("a", a.tick())

	assert.Equal(t, []string{"z", "m"}, obj.Keys())
	assert.Equal(t, `{"z":"z","m":"m"}`, obj.Marshal())
	assert.Equal(t, `{"m":"m","z":"z"}`, crdt.SortedMarshal(obj))
	assert.False(t, obj.Has("a"))
}

func TestObjectNested(t *testing.T) {
	a := newClock(1)
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket.InitialTicket)

	tInner := a.tick()
	inner := crdt.NewObject(crdt.NewElementRHT(), tInner)
	obj.Set("inner", inner, tInner)
	tCount := a.tick()
	count, err := crdt.NewCounter(crdt.IntegerCnt, 3, tCount)
	assert.NoError(t, err)
	inner.Set("count", count, tCount)
	tList := a.tick()
	list := crdt.NewArray(crdt.NewRGATreeList(), tList)
	inner.Set("list", list, tList)
	tItem := a.tick()
	assert.NoError(t, list.Add(prim(t, 1.5, tItem)))

	json := obj.Marshal()
	assert.Equal(t, int64(3), gjson.Get(json, "inner.count").Int())
	assert.Equal(t, 1.5, gjson.Get(json, "inner.list.0").Float())

	var visited []string
	obj.Descendants(func(elem crdt.Element, parent crdt.Container) bool {
		visited = append(visited, elem.CreatedAt().ToTestString())
		return false
	})
	assert.ElementsMatch(t, []string{
		tInner.ToTestString(), tCount.ToTestString(), tList.ToTestString(), tItem.ToTestString(),
	}, visited)

	copied, err := obj.DeepCopy()
	assert.NoError(t, err)
	assert.Equal(t, json, copied.Marshal())
	inner.Delete("count", a.tick())
	assert.NotEqual(t, obj.Marshal(), copied.Marshal())
}
