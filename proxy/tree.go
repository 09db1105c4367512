package proxy

import (
	"sort"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/ticket"
)

// TextNodeType is the type of text nodes.
const TextNodeType = "text"

// TreeNode describes a node to insert in a tree: an element with attributes and
// children, or a text with a value.
type TreeNode struct {
	Type       string            `json:"type"`
	Value      string            `json:"value,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []TreeNode        `json:"children,omitempty"`
}

// IsText returns whether the node is a text.
func (n *TreeNode) IsText() bool {
	return n.Type == TextNodeType
}

func (n *TreeNode) validate() error {
	if n.Type == "" {
		return errorf(ErrInvalidContent, "node without type")
	}
	if n.IsText() {
		if n.Value == "" {
			return errorf(ErrInvalidContent, "empty text node")
		}
		if len(n.Children) > 0 || len(n.Attributes) > 0 {
			return errorf(ErrInvalidContent, "text node with children or attributes")
		}
		return nil
	}
	return validateContents(n.Children)
}

// validateContents checks that contents are all texts or all elements.
func validateContents(contents []TreeNode) error {
	for i := range contents {
		if contents[i].IsText() != contents[0].IsText() {
			return errorf(ErrInvalidContent, "texts mixed with elements")
		}
		if err := contents[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

// toCRDT creates the node at createdAt, and its descendants at tickets from issue.
func (n *TreeNode) toCRDT(createdAt *ticket.Ticket, issue func() *ticket.Ticket) *crdt.TreeNode {
	id := crdt.NewTreeNodeID(createdAt, 0)
	if n.IsText() {
		return crdt.NewTreeNode(id, TextNodeType, nil, n.Value)
	}
	var attrs *crdt.RHT
	if len(n.Attributes) > 0 {
		attrs = crdt.NewRHT()
		keys := make([]string, 0, len(n.Attributes))
		for key := range n.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			attrs.Set(key, n.Attributes[key], createdAt)
		}
	}
	node := crdt.NewTreeNode(id, n.Type, attrs)
	for i := range n.Children {
		if err := node.Append(n.Children[i].toCRDT(issue(), issue)); err != nil {
			panic(err)
		}
	}
	return node
}

// Tree is the handle of a tree. Positions are indexes over the tokens of the tree, where
// each element counts for its open and close tags, and texts count their UTF-16 length.
type Tree struct {
	ctx  *change.Context
	tree *crdt.Tree
}

// NewTree creates the handle of tree within an update.
func NewTree(ctx *change.Context, tree *crdt.Tree) *Tree {
	return &Tree{ctx: ctx, tree: tree}
}

// Element returns the underlying element.
func (p *Tree) Element() *crdt.Tree {
	return p.tree
}

// Edit replaces [from, to) with contents, then splits the ancestors of from up to
// splitLevel levels.
func (p *Tree) Edit(from, to int, contents []TreeNode, splitLevel int) error {
	if err := validateRange(from, to, p.tree.Size()); err != nil {
		return err
	}
	fromPos, err := p.tree.FindPos(from)
	if err != nil {
		return err
	}
	toPos, err := p.tree.FindPos(to)
	if err != nil {
		return err
	}
	return p.edit(fromPos, toPos, contents, splitLevel)
}

// EditByPath is Edit with positions given as paths of child offsets.
func (p *Tree) EditByPath(fromPath, toPath []int, contents []TreeNode, splitLevel int) error {
	from, err := p.tree.PathToIndex(fromPath)
	if err != nil {
		return err
	}
	to, err := p.tree.PathToIndex(toPath)
	if err != nil {
		return err
	}
	return p.Edit(from, to, contents, splitLevel)
}

func (p *Tree) edit(from, to *crdt.TreePos, contents []TreeNode, splitLevel int) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	if splitLevel < 0 {
		return errorf(ErrInvalidContent, "negative split level %d", splitLevel)
	}
	if err := validateContents(contents); err != nil {
		return err
	}
	nodes := make([]*crdt.TreeNode, 0, len(contents))
	for i := range contents {
		nodes = append(nodes, contents[i].toCRDT(p.ctx.IssueTimeTicket(), p.ctx.IssueTimeTicket))
	}
	op := operations.NewTreeEdit(p.tree.CreatedAt(), from, to, nodes, splitLevel, nil, p.ctx.IssueTimeTicket())
	if err := p.ctx.Execute(op); err != nil {
		return err
	}
	// Split elements take the tickets following the operation.
	for i := 0; i < splitLevel; i++ {
		p.ctx.IssueTimeTicket()
	}
	return nil
}

// Style sets attributes of the elements in [from, to).
func (p *Tree) Style(from, to int, attributes map[string]string) error {
	return p.style(from, to, attributes, nil)
}

// RemoveStyle removes attributes of the elements in [from, to).
func (p *Tree) RemoveStyle(from, to int, keys []string) error {
	return p.style(from, to, nil, keys)
}

func (p *Tree) style(from, to int, attributes map[string]string, keys []string) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	if err := validateRange(from, to, p.tree.Size()); err != nil {
		return err
	}
	fromPos, err := p.tree.FindPos(from)
	if err != nil {
		return err
	}
	toPos, err := p.tree.FindPos(to)
	if err != nil {
		return err
	}
	op := operations.NewTreeStyle(p.tree.CreatedAt(), fromPos, toPos, attributes, keys, nil, p.ctx.IssueTimeTicket())
	return p.ctx.Execute(op)
}

// Size returns the number of tokens of the tree.
func (p *Tree) Size() int {
	return p.tree.Size()
}

// ToXML returns the XML form of the tree.
func (p *Tree) ToXML() string {
	return p.tree.ToXML()
}

// PathToIndex converts a path into an index.
func (p *Tree) PathToIndex(path []int) (int, error) {
	return p.tree.PathToIndex(path)
}

// IndexToPath converts an index into a path.
func (p *Tree) IndexToPath(index int) ([]int, error) {
	return p.tree.IndexToPath(index)
}
