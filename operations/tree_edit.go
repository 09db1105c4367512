package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// TreeEdit replaces a range of a tree with nodes, then splits ancestors of the start of
// the range splitLevel times.
type TreeEdit struct {
	base
	from, to               *crdt.TreePos
	maxCreatedAtMapByActor map[string]*ticket.Ticket
	contents               []*crdt.TreeNode
	splitLevel             int
}

// NewTreeEdit creates a TreeEdit operation. Contents are copied when executed. A nil
// maxCreatedAtMapByActor denotes a local edit, which is filled on execution.
//
// Split elements are created at the tickets following executedAt, so the issuer must
// skip splitLevel tickets after this one.
func NewTreeEdit(
	parentCreatedAt *ticket.Ticket,
	from, to *crdt.TreePos,
	contents []*crdt.TreeNode,
	splitLevel int,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
	executedAt *ticket.Ticket,
) *TreeEdit {
	return &TreeEdit{
		base:                   base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		from:                   from,
		to:                     to,
		maxCreatedAtMapByActor: maxCreatedAtMapByActor,
		contents:               contents,
		splitLevel:             splitLevel,
	}
}

func (o *TreeEdit) From() *crdt.TreePos        { return o.from }
func (o *TreeEdit) To() *crdt.TreePos          { return o.to }
func (o *TreeEdit) Contents() []*crdt.TreeNode { return o.contents }
func (o *TreeEdit) SplitLevel() int            { return o.splitLevel }

func (o *TreeEdit) MaxCreatedAtMapByActor() map[string]*ticket.Ticket {
	return o.maxCreatedAtMapByActor
}

// Execute edits the tree.
func (o *TreeEdit) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	tree, err := findParent[*crdt.Tree](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	contents := make([]*crdt.TreeNode, 0, len(o.contents))
	for _, node := range o.contents {
		contents = append(contents, node.DeepCopy())
	}
	changes, pairs, maxCreatedAtMap, err := tree.Edit(o.from, o.to, contents, o.splitLevel, o.executedAt, o.maxCreatedAtMapByActor)
	if err != nil {
		return nil, nil, err
	}
	if o.maxCreatedAtMapByActor == nil {
		o.maxCreatedAtMapByActor = maxCreatedAtMap
	}
	for _, pair := range pairs {
		root.RegisterGCPair(pair)
	}

	path, err := root.CreatePath(o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return treeOpInfos(path, changes), nil, nil
}

func treeOpInfos(path string, changes []crdt.TreeChange) []OpInfo {
	infos := make([]OpInfo, 0, len(changes))
	for _, change := range changes {
		info := OpInfo{
			Path:               path,
			From:               change.From,
			To:                 change.To,
			FromPath:           change.FromPath,
			ToPath:             change.ToPath,
			TreeNodes:          change.Value,
			SplitLevel:         change.SplitLevel,
			Attributes:         change.Attributes,
			AttributesToRemove: change.AttributesToRemove,
		}
		if change.Type == crdt.TreeChangeContent {
			info.Type = OpTreeEdit
		} else {
			info.Type = OpTreeStyle
		}
		infos = append(infos, info)
	}
	return infos
}
