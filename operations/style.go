package operations

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

// Style sets attributes on a range of a text.
type Style struct {
	base
	from, to               *crdt.RGATreeSplitNodePos
	maxCreatedAtMapByActor map[string]*ticket.Ticket
	attributes             map[string]string
}

// NewStyle creates a Style operation. A nil maxCreatedAtMapByActor denotes a local
// style, which is filled on execution.
func NewStyle(
	parentCreatedAt *ticket.Ticket,
	from, to *crdt.RGATreeSplitNodePos,
	maxCreatedAtMapByActor map[string]*ticket.Ticket,
	attributes map[string]string,
	executedAt *ticket.Ticket,
) *Style {
	return &Style{
		base:                   base{parentCreatedAt: parentCreatedAt, executedAt: executedAt},
		from:                   from,
		to:                     to,
		maxCreatedAtMapByActor: maxCreatedAtMapByActor,
		attributes:             attributes,
	}
}

func (o *Style) From() *crdt.RGATreeSplitNodePos { return o.from }
func (o *Style) To() *crdt.RGATreeSplitNodePos   { return o.to }
func (o *Style) Attributes() map[string]string   { return o.attributes }

func (o *Style) MaxCreatedAtMapByActor() map[string]*ticket.Ticket {
	return o.maxCreatedAtMapByActor
}

// Execute styles the text.
func (o *Style) Execute(root *crdt.Root, source Source) ([]OpInfo, Operation, error) {
	text, err := findParent[*crdt.Text](root, o.parentCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if skipUndoRedo(root, source, o.parentCreatedAt) {
		return nil, nil, nil
	}

	maxCreatedAtMap, pairs, changes, err := text.Style(o.from, o.to, o.attributes, o.executedAt, o.maxCreatedAtMapByActor)
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
