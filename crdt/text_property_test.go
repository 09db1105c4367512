package crdt_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/brunokim/causal-doc/crdt"
)

// Model two replicas of a text that edit concurrently and then exchange their edits,
// round after round. After each exchange both replicas must show the same contents.
type textReplicas struct {
	clocks  [2]*clock
	texts   [2]*crdt.Text
	pending [2][]textEdit
}

func (m *textReplicas) Init(t *rapid.T) {
	m.clocks = [2]*clock{newClock(1), newClock(2)}
	m.texts = [2]*crdt.Text{newText(), newText()}
}

func (m *textReplicas) edit(t *rapid.T, i int) {
	text := m.texts[i]
	from := rapid.IntRange(0, text.Len()).Draw(t, "from").(int)
	to := rapid.IntRange(from, text.Len()).Draw(t, "to").(int)
	content := rapid.StringMatching(`[a-z]{0,3}`).Draw(t, "content").(string)

	fromPos, toPos, err := text.CreateRange(from, to)
	if err != nil {
		t.Fatalf("CreateRange(%d, %d): %v", from, to, err)
	}
	at := m.clocks[i].tick()
	_, maxMap, _, _, err := text.Edit(fromPos, toPos, content, nil, at, nil)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	m.pending[i] = append(m.pending[i], textEdit{from: fromPos, to: toPos, content: content, at: at, maxMap: maxMap})
}

func (m *textReplicas) EditFirst(t *rapid.T)  { m.edit(t, 0) }
func (m *textReplicas) EditSecond(t *rapid.T) { m.edit(t, 1) }

func (m *textReplicas) Exchange(t *rapid.T) {
	for i, j := 0, 1; i < 2; i, j = i+1, j-1 {
		for _, edit := range m.pending[j] {
			_, _, _, _, err := m.texts[i].Edit(edit.from, edit.to, edit.content, nil, edit.at, edit.maxMap)
			if err != nil {
				t.Fatalf("remote Edit: %v", err)
			}
			m.clocks[i].sync(edit.at)
		}
	}
	m.pending = [2][]textEdit{}
}

func (m *textReplicas) Check(t *rapid.T) {
	if len(m.pending[0]) > 0 || len(m.pending[1]) > 0 {
		return
	}
	got, want := m.texts[0].Marshal(), m.texts[1].Marshal()
	if got != want {
		t.Fatalf("replicas diverged:\n%s\n%s\n%s\n%s",
			got, m.texts[0].ToTestString(), want, m.texts[1].ToTestString())
	}
}

func TestTextConvergence(t *testing.T) {
	rapid.Check(t, rapid.Run(&textReplicas{}))
}
