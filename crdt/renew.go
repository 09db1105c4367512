package crdt

import (
	"fmt"

	"github.com/brunokim/causal-doc/ticket"
)

// Renew rebuilds the live contents of elem as a new element created at createdAt, with
// its descendants, text runs and tree nodes created at tickets taken from issue. It is
// used to restore a removed value, which can't be revived with its original identity.
func Renew(elem Element, createdAt *ticket.Ticket, issue func() *ticket.Ticket) (Element, error) {
	switch e := elem.(type) {
	case *Primitive:
		return NewPrimitive(e.value, createdAt)
	case *Counter:
		return NewCounter(e.valueType, e.value, createdAt)
	case *Object:
		obj := NewObject(NewElementRHT(), createdAt)
		for _, key := range e.Keys() {
			child, err := Renew(e.Get(key), issue(), issue)
			if err != nil {
				return nil, err
			}
			obj.Set(key, child, child.CreatedAt())
		}
		return obj, nil
	case *Array:
		arr := NewArray(NewRGATreeList(), createdAt)
		for _, elem := range e.Elements() {
			child, err := Renew(elem, issue(), issue)
			if err != nil {
				return nil, err
			}
			if err := arr.Add(child); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case *Text:
		text := NewText(NewRGATreeSplit(), createdAt)
		for _, node := range e.Nodes() {
			if node.IsRemoved() || node.Len() == 0 {
				continue
			}
			from, to, err := text.CreateRange(text.Len(), text.Len())
			if err != nil {
				return nil, err
			}
			_, _, _, _, err = text.Edit(from, to, node.value.String(), node.value.attrs.Elements(), issue(), nil)
			if err != nil {
				return nil, err
			}
		}
		return text, nil
	case *Tree:
		return NewTree(renewTreeNode(e.Root(), issue), createdAt), nil
	}
	panic(fmt.Sprintf("Renew: unexpected element %T", elem))
}

func renewTreeNode(node *TreeNode, issue func() *ticket.Ticket) *TreeNode {
	createdAt := issue()
	var attrs *RHT
	if node.Attrs != nil && node.Attrs.Len() > 0 {
		attrs = NewRHT()
		for _, key := range sortedKeys(node.Attrs.Elements()) {
			attrs.Set(key, node.Attrs.Get(key), createdAt)
		}
	}
	if node.IsText() {
		return NewTreeNode(NewTreeNodeID(createdAt, 0), node.Type(), attrs, node.Value)
	}
	renewed := NewTreeNode(NewTreeNodeID(createdAt, 0), node.Type(), attrs)
	for _, child := range node.Children() {
		// Appending detached content can't fail.
		_ = renewed.Append(renewTreeNode(child, issue))
	}
	return renewed
}
