package converter

import (
	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
)

// Operation is the wire form of any operation. Type selects which fields are set.
type Operation struct {
	Type            operations.OpType `json:"type"`
	ParentCreatedAt *Ticket           `json:"parent_created_at"`
	ExecutedAt      *Ticket           `json:"executed_at"`

	Key           string   `json:"key,omitempty"`
	Value         *Element `json:"value,omitempty"`
	PrevCreatedAt *Ticket  `json:"prev_created_at,omitempty"`
	CreatedAt     *Ticket  `json:"created_at,omitempty"`

	From                   *TextNodePos       `json:"from,omitempty"`
	To                     *TextNodePos       `json:"to,omitempty"`
	TreeFrom               *TreePos           `json:"tree_from,omitempty"`
	TreeTo                 *TreePos           `json:"tree_to,omitempty"`
	MaxCreatedAtMapByActor map[string]*Ticket `json:"max_created_at_map_by_actor,omitempty"`
	Content                string             `json:"content,omitempty"`
	Attributes             map[string]string  `json:"attributes,omitempty"`
	AttributesToRemove     []string           `json:"attributes_to_remove,omitempty"`
	Contents               []*TreeNode        `json:"contents,omitempty"`
	SplitLevel             int                `json:"split_level,omitempty"`
}

// ToOperations encodes ops.
func ToOperations(ops []operations.Operation) ([]Operation, error) {
	encoded := make([]Operation, 0, len(ops))
	for _, op := range ops {
		pb, err := ToOperation(op)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, *pb)
	}
	return encoded, nil
}

// ToOperation encodes op.
func ToOperation(op operations.Operation) (*Operation, error) {
	pb := &Operation{
		ParentCreatedAt: ToTicket(op.ParentCreatedAt()),
		ExecutedAt:      ToTicket(op.ExecutedAt()),
	}
	var err error
	switch o := op.(type) {
	case *operations.Set:
		pb.Type = operations.OpSet
		pb.Key = o.Key()
		pb.Value, err = ToElement(o.Value())
	case *operations.Add:
		pb.Type = operations.OpAdd
		pb.PrevCreatedAt = ToTicket(o.PrevCreatedAt())
		pb.Value, err = ToElement(o.Value())
	case *operations.Move:
		pb.Type = operations.OpMove
		pb.PrevCreatedAt = ToTicket(o.PrevCreatedAt())
		pb.CreatedAt = ToTicket(o.CreatedAt())
	case *operations.Remove:
		pb.Type = operations.OpRemove
		pb.CreatedAt = ToTicket(o.CreatedAt())
	case *operations.Increase:
		pb.Type = operations.OpIncrease
		pb.Value, err = ToElement(o.Value())
	case *operations.Edit:
		pb.Type = operations.OpEdit
		pb.From = ToTextNodePos(o.From())
		pb.To = ToTextNodePos(o.To())
		pb.MaxCreatedAtMapByActor = toTicketMap(o.MaxCreatedAtMapByActor())
		pb.Content = o.Content()
		pb.Attributes = o.Attributes()
	case *operations.Style:
		pb.Type = operations.OpStyle
		pb.From = ToTextNodePos(o.From())
		pb.To = ToTextNodePos(o.To())
		pb.MaxCreatedAtMapByActor = toTicketMap(o.MaxCreatedAtMapByActor())
		pb.Attributes = o.Attributes()
	case *operations.TreeEdit:
		pb.Type = operations.OpTreeEdit
		pb.TreeFrom = ToTreePos(o.From())
		pb.TreeTo = ToTreePos(o.To())
		pb.MaxCreatedAtMapByActor = toTicketMap(o.MaxCreatedAtMapByActor())
		for _, node := range o.Contents() {
			pb.Contents = append(pb.Contents, ToTreeNode(node))
		}
		pb.SplitLevel = o.SplitLevel()
	case *operations.TreeStyle:
		pb.Type = operations.OpTreeStyle
		pb.TreeFrom = ToTreePos(o.From())
		pb.TreeTo = ToTreePos(o.To())
		pb.MaxCreatedAtMapByActor = toTicketMap(o.MaxCreatedAtMapByActor())
		pb.Attributes = o.Attributes()
		pb.AttributesToRemove = o.AttributesToRemove()
	default:
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%T", op)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", pb.Type)
	}
	return pb, nil
}

// FromOperations decodes ops.
func FromOperations(pbs []Operation) ([]operations.Operation, error) {
	ops := make([]operations.Operation, 0, len(pbs))
	for i := range pbs {
		op, err := FromOperation(&pbs[i])
		if err != nil {
			return nil, errors.Wrapf(err, "operation %d", i)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// FromOperation decodes an operation.
func FromOperation(pb *Operation) (operations.Operation, error) {
	parentCreatedAt, err := fromRequiredTicket(pb.ParentCreatedAt, "parent_created_at")
	if err != nil {
		return nil, err
	}
	executedAt, err := fromRequiredTicket(pb.ExecutedAt, "executed_at")
	if err != nil {
		return nil, err
	}

	switch pb.Type {
	case operations.OpSet:
		value, err := FromElement(pb.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewSet(parentCreatedAt, pb.Key, value, executedAt), nil
	case operations.OpAdd:
		prevCreatedAt, err := fromRequiredTicket(pb.PrevCreatedAt, "prev_created_at")
		if err != nil {
			return nil, err
		}
		value, err := FromElement(pb.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewAdd(parentCreatedAt, prevCreatedAt, value, executedAt), nil
	case operations.OpMove:
		prevCreatedAt, err := fromRequiredTicket(pb.PrevCreatedAt, "prev_created_at")
		if err != nil {
			return nil, err
		}
		createdAt, err := fromRequiredTicket(pb.CreatedAt, "created_at")
		if err != nil {
			return nil, err
		}
		return operations.NewMove(parentCreatedAt, prevCreatedAt, createdAt, executedAt), nil
	case operations.OpRemove:
		createdAt, err := fromRequiredTicket(pb.CreatedAt, "created_at")
		if err != nil {
			return nil, err
		}
		return operations.NewRemove(parentCreatedAt, createdAt, executedAt), nil
	case operations.OpIncrease:
		value, err := FromElement(pb.Value)
		if err != nil {
			return nil, err
		}
		prim, ok := value.(*crdt.Primitive)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedElement, "increase by %T", value)
		}
		return operations.NewIncrease(parentCreatedAt, prim, executedAt), nil
	case operations.OpEdit, operations.OpStyle:
		from, err := FromTextNodePos(pb.From)
		if err != nil {
			return nil, err
		}
		to, err := FromTextNodePos(pb.To)
		if err != nil {
			return nil, err
		}
		maxCreatedAt, err := fromTicketMap(pb.MaxCreatedAtMapByActor)
		if err != nil {
			return nil, err
		}
		if pb.Type == operations.OpStyle {
			return operations.NewStyle(parentCreatedAt, from, to, maxCreatedAt, pb.Attributes, executedAt), nil
		}
		return operations.NewEdit(parentCreatedAt, from, to, maxCreatedAt, pb.Content, pb.Attributes, executedAt), nil
	case operations.OpTreeEdit, operations.OpTreeStyle:
		from, err := FromTreePos(pb.TreeFrom)
		if err != nil {
			return nil, err
		}
		to, err := FromTreePos(pb.TreeTo)
		if err != nil {
			return nil, err
		}
		maxCreatedAt, err := fromTicketMap(pb.MaxCreatedAtMapByActor)
		if err != nil {
			return nil, err
		}
		if pb.Type == operations.OpTreeStyle {
			return operations.NewTreeStyle(parentCreatedAt, from, to, pb.Attributes, pb.AttributesToRemove, maxCreatedAt, executedAt), nil
		}
		contents := make([]*crdt.TreeNode, 0, len(pb.Contents))
		for _, content := range pb.Contents {
			node, err := FromTreeNode(content)
			if err != nil {
				return nil, err
			}
			contents = append(contents, node)
		}
		return operations.NewTreeEdit(parentCreatedAt, from, to, contents, pb.SplitLevel, maxCreatedAt, executedAt), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOperation, "type %q", pb.Type)
}
