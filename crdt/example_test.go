package crdt_test

import (
	"fmt"

	"github.com/brunokim/causal-doc/crdt"
)

func ExampleText() {
	c := newClock(1)
	text := newText()

	from, to, _ := text.CreateRange(0, 0)
	text.Edit(from, to, "Hello world", nil, c.tick(), nil)
	from, to, _ = text.CreateRange(0, 5)
	text.Style(from, to, map[string]string{"bold": "true"}, c.tick(), nil)

	fmt.Println(text.String())
	fmt.Println(text.Marshal())
	// Output:
	// Hello world
	// [{"attrs":{"bold":"true"},"val":"Hello"},{"val":" world"}]
}

func ExampleTree() {
	c := newClock(1)
	tree := newTree()

	tp := c.tick()
	tree.EditByIndex(0, 0, []*crdt.TreeNode{element("p", tp)}, 0, tp, nil)
	tt := c.tick()
	tree.EditByIndex(1, 1, []*crdt.TreeNode{textNode("hello", tt)}, 0, tt, nil)
	fmt.Println(tree.ToXML())

	// Split the paragraph after "he".
	tree.EditByIndex(3, 3, nil, 1, c.tick(), nil)
	fmt.Println(tree.ToXML())
	path, _ := tree.IndexToPath(5)
	fmt.Println(path)
	// Output:
	// <root><p>hello</p></root>
	// <root><p>he</p><p>llo</p></root>
	// [1 0]
}
