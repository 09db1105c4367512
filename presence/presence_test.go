package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brunokim/causal-doc/presence"
)

func TestPresenceSet(t *testing.T) {
	data := presence.Data{"name": "ann"}
	p := presence.New(data)
	p.Set(presence.Data{"cursor": "3"})

	assert.Equal(t, "3", p.Get("cursor"))
	assert.Equal(t, &presence.Change{Type: presence.Put, Presence: presence.Data{"name": "ann", "cursor": "3"}}, p.Change())
	assert.Nil(t, p.ReversePatch())

	// The change holds a copy.
	p.Change().Presence["name"] = "bob"
	assert.Equal(t, "ann", data["name"])
}

func TestPresenceHistory(t *testing.T) {
	p := presence.New(presence.Data{"name": "ann"})
	p.Set(presence.Data{"name": "bob", "color": "red"}, presence.WithHistory())
	p.Set(presence.Data{"name": "carl"}, presence.WithHistory())

	reverse := p.ReversePatch()
	assert.Equal(t, presence.Data{"name": "ann", "color": ""}, reverse)
	assert.Equal(t, presence.Data{"name": "ann"}, presence.Apply(p.Data(), reverse))
}

func TestPresenceClear(t *testing.T) {
	p := presence.New(presence.Data{"name": "ann"})
	p.Clear()
	assert.Equal(t, presence.Clear, p.Change().Type)
	assert.Empty(t, p.Data())
}

func TestMap(t *testing.T) {
	m := presence.NewMap()
	m.Store("b", presence.Data{"name": "bob"})
	m.Store("a", presence.Data{"name": "ann"})

	copied := m.DeepCopy()
	m.Delete("a")
	assert.False(t, m.Has("a"))
	assert.Equal(t, 2, copied.Len())

	var actors []string
	copied.Range(func(actor string, data presence.Data) bool {
		actors = append(actors, actor)
		return true
	})
	assert.Equal(t, []string{"a", "b"}, actors)
}
