// Package presence holds the ephemeral state each client shares about itself, such as
// a name or a cursor, next to a document.
package presence

import (
	"sort"
)

// Data is the presence of one client.
type Data map[string]string

// DeepCopy returns a copy of the data.
func (d Data) DeepCopy() Data {
	if d == nil {
		return nil
	}
	copied := make(Data, len(d))
	for k, v := range d {
		copied[k] = v
	}
	return copied
}

// Keys returns the keys in lexicographic order.
func (d Data) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChangeType is the kind of a presence Change.
type ChangeType int

const (
	// Put replaces the presence of the client.
	Put ChangeType = iota
	// Clear removes the presence of the client, as when it detaches.
	Clear
)

func (t ChangeType) String() string {
	if t == Clear {
		return "clear"
	}
	return "put"
}

// Change is a change to the presence of the client that made it, sent along a document
// change.
type Change struct {
	Type     ChangeType
	Presence Data
}

// +-----+
// | Map |
// +-----+

// Map holds the presences of clients by actor ID.
type Map struct {
	m map[string]Data
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{m: make(map[string]Data)}
}

// Store sets the presence of an actor.
func (m *Map) Store(actorID string, data Data) {
	m.m[actorID] = data
}

// Load returns the presence of an actor.
func (m *Map) Load(actorID string) (Data, bool) {
	data, ok := m.m[actorID]
	return data, ok
}

// Has returns whether the actor has a presence.
func (m *Map) Has(actorID string) bool {
	_, ok := m.m[actorID]
	return ok
}

// Delete removes the presence of an actor.
func (m *Map) Delete(actorID string) {
	delete(m.m, actorID)
}

// Len returns the number of presences.
func (m *Map) Len() int {
	return len(m.m)
}

// Range calls fn for each presence in actor order, until it returns false.
func (m *Map) Range(fn func(actorID string, data Data) bool) {
	actors := make([]string, 0, len(m.m))
	for actor := range m.m {
		actors = append(actors, actor)
	}
	sort.Strings(actors)
	for _, actor := range actors {
		if !fn(actor, m.m[actor]) {
			return
		}
	}
}

// DeepCopy copies the map and every presence.
func (m *Map) DeepCopy() *Map {
	copied := NewMap()
	for actor, data := range m.m {
		copied.m[actor] = data.DeepCopy()
	}
	return copied
}

// +----------+
// | Presence |
// +----------+

// Presence is the handle to the presence of the local client inside a document update.
// Every Set records a Put of the whole presence. With history, it also records the
// previous values of the keys it sets, so that undo can restore them.
type Presence struct {
	data    Data
	change  *Change
	reverse Data
}

// New creates a handle over data, which is modified in place.
func New(data Data) *Presence {
	if data == nil {
		data = make(Data)
	}
	return &Presence{data: data}
}

// SetOption configures Set.
type SetOption func(*setOptions)

type setOptions struct {
	addToHistory bool
}

// WithHistory makes the change undoable.
func WithHistory() SetOption {
	return func(o *setOptions) { o.addToHistory = true }
}

// Set updates keys of the presence.
func (p *Presence) Set(values Data, opts ...SetOption) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, key := range values.Keys() {
		if o.addToHistory {
			if p.reverse == nil {
				p.reverse = make(Data)
			}
			if _, seen := p.reverse[key]; !seen {
				// An empty previous value unsets the key on undo.
				p.reverse[key] = p.data[key]
			}
		}
		p.data[key] = values[key]
	}
	p.change = &Change{Type: Put, Presence: p.data.DeepCopy()}
}

// Get returns the value of a key.
func (p *Presence) Get(key string) string {
	return p.data[key]
}

// Data returns a copy of the presence.
func (p *Presence) Data() Data {
	return p.data.DeepCopy()
}

// Clear removes the presence.
func (p *Presence) Clear() {
	for key := range p.data {
		delete(p.data, key)
	}
	p.change = &Change{Type: Clear}
}

// Change returns the change recorded by the handle, if any.
func (p *Presence) Change() *Change {
	return p.change
}

// ReversePatch returns the values to restore on undo, if the change was made with
// history.
func (p *Presence) ReversePatch() Data {
	return p.reverse
}

// Apply patches data with values, removing keys whose value is empty. Used to undo and
// redo presence changes.
func Apply(data Data, patch Data) Data {
	result := data.DeepCopy()
	if result == nil {
		result = make(Data)
	}
	for key, value := range patch {
		if value == "" {
			delete(result, key)
		} else {
			result[key] = value
		}
	}
	return result
}
