package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// TreeStyle sets and removes attributes of the elements in a range of a tree.
type TreeStyle struct {
	base
	from, to               *crdt.TreePos
	maxCreatedAtMapByActor map[string]*ticket.Ticket
	attributes             map[string]string
	attributesToRemove     []string
}

// NewTreeStyle creates a TreeStyle operation. A nil maxCreatedAtMapByActor denotes a
// local style, which is filled on execution.
func NewTreeStyle(
	parentCreatedAt *ticket.Ticket,
	from, to *crdt.TreePos,
	attributes map[string]string,
	attributesToRemove []string,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
	executedAt *ticket.Ticket,
) *TreeStyle {
	return &TreeStyle{
		base:                   base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		from:                   from,
		to:                     to,
		maxCreatedAtMapByActor: maxCreatedAtMapByActor,
		attributes:             attributes,
		attributesToRemove:     attributesToRemove,
	}
}

func (o *TreeStyle) From() *crdt.TreePos           { return o.from }
func (o *TreeStyle) To() *crdt.TreePos             { return o.to }
func (o *TreeStyle) Attributes() map[string]string { return o.attributes }
func (o *TreeStyle) AttributesToRemove() []string  { return o.attributesToRemove }

func (o *TreeStyle) MaxCreatedAtMapByActor() map[string]*ticket.Ticket {
	return o.maxCreatedAtMapByActor
}

// Execute styles the tree, setting attributes before removing the others.
func (o *TreeStyle) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	tree, err := findParent[*crdt.Tree](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	var changes []crdt.TreeChange
	maxCreatedAtMap := make(map[string]*ticket.Ticket)
	apply := func(style func(maxMap map[string]*ticket.Ticket) ([]crdt.TreeChange, []crdt.GCPair, map[string]*ticket.Ticket, error)) error {
		styleChanges, pairs, styled, err := style(o.maxCreatedAtMapByActor)
		if err != nil {
			return err
		}
		changes = append(changes, styleChanges...)
		for _, pair := range pairs {
			root.RegisterGCPair(pair)
		}
		for actor, createdAt := range styled {
			if prev, ok := maxCreatedAtMap[actor]; !ok || createdAt.After(prev) {
				maxCreatedAtMap[actor] = createdAt
			}
		}
		return nil
	}
	if len(o.attributes) > 0 {
		err := apply(func(maxMap map[string]*ticket.Ticket) ([]crdt.TreeChange, []crdt.GCPair, map[string]*ticket.Ticket, error) {
			return tree.Style(o.from, o.to, o.attributes, o.executedAt, maxMap)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if len(o.attributesToRemove) > 0 {
		err := apply(func(maxMap map[string]*ticket.Ticket) ([]crdt.TreeChange, []crdt.GCPair, map[string]*ticket.Ticket, error) {
			return tree.RemoveStyle(o.from, o.to, o.attributesToRemove, o.executedAt, maxMap)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if o.maxCreatedAtMapByActor == nil {
		o.maxCreatedAtMapByActor = maxCreatedAtMap
	}

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return treeOpInfos(path, changes), nil, nil
}
