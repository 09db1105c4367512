package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Edit replaces a range of a text with styled content.
type Edit struct {
	base
	from, to *crdt.RGATreeSplitNodePos
	// maxCreatedAtMapByActor holds, for each actor, the newest run the editor could see
	// inside the range. Nil until a local edit is first executed.
	maxCreatedAtMapByActor map[string]*ticket.Ticket
	content                string
	attributes             map[string]string
}

// NewEdit creates an Edit operation. A nil maxCreatedAtMapByActor denotes a local edit,
// which is filled on execution.
func NewEdit(
	parentCreatedAt *ticket.Ticket,
	from, to *crdt.RGATreeSplitNodePos,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
	content string,
	attributes map[string]string,
	executedAt *ticket.Ticket,
) *Edit {
	return &Edit{
		base:                   base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		from:                   from,
		to:                     to,
		maxCreatedAtMapByActor: maxCreatedAtMapByActor,
		content:                content,
		attributes:             attributes,
	}
}

func (o *Edit) From() *crdt.RGATreeSplitNodePos { return o.from }
func (o *Edit) To() *crdt.RGATreeSplitNodePos   { return o.to }
func (o *Edit) Content() string                 { return o.content }
func (o *Edit) Attributes() map[string]string   { return o.attributes }

// MaxCreatedAtMapByActor returns the runs visible to the editor, by actor.
func (o *Edit) MaxCreatedAtMapByActor() map[string]*ticket.Ticket {
	return o.maxCreatedAtMapByActor
}

// Execute edits the text.
func (o *Edit) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	text, err := findParent[*crdt.Text](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	_, maxCreatedAtMap, pairs, changes, err := text.Edit(o.from, o.to, o.content, o.attributes, o.executedAt, o.maxCreatedAtMapByActor)
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
	return textOpInfos(path, changes), nil, nil
}

func textOpInfos(path string, changes []crdt.TextChange) []OpInfo {
	infos := make([]OpInfo, 0, len(changes))
	for _, change := range changes {
		info := OpInfo{
			Path:       path,
			From:       change.From,
			To:         change.To,
			Attributes: change.Attributes,
		}
		switch change.Type {
		case crdt.TextChangeContent:
			info.Type = OpEdit
			info.Value = change.Content
		case crdt.TextChangeStyle:
			info.Type = OpStyle
		}
		infos = append(infos, info)
	}
	return infos
}
