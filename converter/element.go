package converter

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/index"
)

// Element types on the wire.
const (
	ObjectType    = "object"
	ArrayType     = "array"
	PrimitiveType = "primitive"
	CounterType   = "counter"
	TextType      = "text"
	TreeType      = "tree"
)

// Element is the wire form of an element with its descendants. Only the fields of its
// type are set.
type Element struct {
	Type      string  `json:"type"`
	CreatedAt *Ticket `json:"created_at"`
	MovedAt   *Ticket `json:"moved_at,omitempty"`
	RemovedAt *Ticket `json:"removed_at,omitempty"`

	Members  []ObjectMember `json:"members,omitempty"`
	Elements []*Element     `json:"elements,omitempty"`

	ValueType string `json:"value_type,omitempty"`
	Value     []byte `json:"value,omitempty"`
	Number    string `json:"number,omitempty"`

	Nodes []TextNode `json:"nodes,omitempty"`
	Root  *TreeNode  `json:"root,omitempty"`
}

// ObjectMember is a key binding of an object. Hidden members were overwritten by a newer
// binding of the same key.
type ObjectMember struct {
	Key    string   `json:"key"`
	Hidden bool     `json:"hidden,omitempty"`
	Value  *Element `json:"value"`
}

// TextNodeID is the wire form of crdt.RGATreeSplitNodeID.
type TextNodeID struct {
	CreatedAt *Ticket `json:"created_at"`
	Offset    int     `json:"offset"`
}

// TextNodePos is the wire form of crdt.RGATreeSplitNodePos.
type TextNodePos struct {
	CreatedAt      *Ticket `json:"created_at"`
	Offset         int     `json:"offset"`
	RelativeOffset int     `json:"relative_offset"`
}

// TextNode is a run of a text.
type TextNode struct {
	ID         TextNodeID  `json:"id"`
	Value      string      `json:"value"`
	Attributes []RHTNode   `json:"attributes,omitempty"`
	RemovedAt  *Ticket     `json:"removed_at,omitempty"`
	InsPrevID  *TextNodeID `json:"ins_prev_id,omitempty"`
}

// TreeNodeID is the wire form of crdt.TreeNodeID.
type TreeNodeID struct {
	CreatedAt *Ticket `json:"created_at"`
	Offset    int     `json:"offset"`
}

// TreePos is the wire form of crdt.TreePos.
type TreePos struct {
	ParentID      TreeNodeID `json:"parent_id"`
	LeftSiblingID TreeNodeID `json:"left_sibling_id"`
}

// TreeNode is a tree node with its children, removed ones included.
type TreeNode struct {
	ID         TreeNodeID  `json:"id"`
	Type       string      `json:"type"`
	Value      string      `json:"value,omitempty"`
	Attributes []RHTNode   `json:"attributes,omitempty"`
	RemovedAt  *Ticket     `json:"removed_at,omitempty"`
	InsPrevID  *TreeNodeID `json:"ins_prev_id,omitempty"`
	InsNextID  *TreeNodeID `json:"ins_next_id,omitempty"`
	Children   []*TreeNode `json:"children,omitempty"`
}

// +----------+
// | Encoding |
// +----------+

// ToElement encodes elem with its descendants.
func ToElement(elem crdt.Element) (*Element, error) {
	pb := &Element{
		CreatedAt: ToTicket(elem.CreatedAt()),
		MovedAt:   ToTicket(elem.MovedAt()),
		RemovedAt: ToTicket(elem.RemovedAt()),
	}
	switch e := elem.(type) {
	case *crdt.Object:
		pb.Type = ObjectType
		for _, node := range e.RHTNodes() {
			value, err := ToElement(node.Element())
			if err != nil {
				return nil, err
			}
			pb.Members = append(pb.Members, ObjectMember{
				Key:    node.Key(),
				Hidden: !e.IsVisible(node),
				Value:  value,
			})
		}
	case *crdt.Array:
		pb.Type = ArrayType
		for _, node := range e.RGANodes() {
			value, err := ToElement(node.Element())
			if err != nil {
				return nil, err
			}
			pb.Elements = append(pb.Elements, value)
		}
	case *crdt.Primitive:
		pb.Type = PrimitiveType
		pb.ValueType = e.ValueType().String()
		pb.Value = e.Bytes()
	case *crdt.Counter:
		pb.Type = CounterType
		switch v := e.Value().(type) {
		case int32:
			pb.ValueType = "integer"
			pb.Number = strconv.FormatInt(int64(v), 10)
		case int64:
			pb.ValueType = "long"
			pb.Number = strconv.FormatInt(v, 10)
		}
	case *crdt.Text:
		pb.Type = TextType
		for _, node := range e.Nodes() {
			pb.Nodes = append(pb.Nodes, toTextNode(node))
		}
	case *crdt.Tree:
		pb.Type = TreeType
		pb.Root = ToTreeNode(e.Root())
	default:
		return nil, errors.Wrapf(ErrUnsupportedElement, "%T", elem)
	}
	return pb, nil
}

func toTextNode(node *crdt.RGATreeSplitNode) TextNode {
	pb := TextNode{
		ID:         toTextNodeID(node.ID()),
		Value:      node.Value().String(),
		Attributes: toRHT(node.Value().Attrs()),
		RemovedAt:  ToTicket(node.RemovedAt()),
	}
	if insPrev := node.InsPrevID(); insPrev != nil {
		id := toTextNodeID(insPrev)
		pb.InsPrevID = &id
	}
	return pb
}

func toTextNodeID(id *crdt.RGATreeSplitNodeID) TextNodeID {
	return TextNodeID{CreatedAt: ToTicket(id.CreatedAt()), Offset: id.Offset()}
}

// ToTextNodePos encodes a text position.
func ToTextNodePos(pos *crdt.RGATreeSplitNodePos) *TextNodePos {
	return &TextNodePos{
		CreatedAt:      ToTicket(pos.ID().CreatedAt()),
		Offset:         pos.ID().Offset(),
		RelativeOffset: pos.RelativeOffset(),
	}
}

// ToTreeNode encodes node with its descendants.
func ToTreeNode(node *crdt.TreeNode) *TreeNode {
	pb := &TreeNode{
		ID:        toTreeNodeID(node.ID()),
		Type:      node.Type(),
		RemovedAt: ToTicket(node.RemovedAt()),
		InsPrevID: toTreeNodeIDPtr(node.InsPrevID),
		InsNextID: toTreeNodeIDPtr(node.InsNextID),
	}
	if node.IsText() {
		pb.Value = node.Value
	} else {
		pb.Attributes = toRHT(node.Attrs)
	}
	for _, child := range node.Index.Children(true) {
		pb.Children = append(pb.Children, ToTreeNode(child.Value))
	}
	return pb
}

func toTreeNodeID(id *crdt.TreeNodeID) TreeNodeID {
	return TreeNodeID{CreatedAt: ToTicket(id.CreatedAt), Offset: id.Offset}
}

func toTreeNodeIDPtr(id *crdt.TreeNodeID) *TreeNodeID {
	if id == nil {
		return nil
	}
	pb := toTreeNodeID(id)
	return &pb
}

// ToTreePos encodes a tree position.
func ToTreePos(pos *crdt.TreePos) *TreePos {
	return &TreePos{
		ParentID:      toTreeNodeID(pos.ParentID),
		LeftSiblingID: toTreeNodeID(pos.LeftSiblingID),
	}
}

// +----------+
// | Decoding |
// +----------+

// FromElement decodes an element with its descendants.
func FromElement(pb *Element) (crdt.Element, error) {
	if pb == nil {
		return nil, errors.Wrap(ErrMissingField, "element")
	}
	createdAt, err := fromRequiredTicket(pb.CreatedAt, "element created_at")
	if err != nil {
		return nil, err
	}
	var elem crdt.Element
	switch pb.Type {
	case ObjectType:
		members := crdt.NewElementRHT()
		for _, member := range pb.Members {
			value, err := FromElement(member.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "member %q", member.Key)
			}
			members.SetInternal(member.Key, value, !member.Hidden)
		}
		elem = crdt.NewObject(members, createdAt)
	case ArrayType:
		list := crdt.NewRGATreeList()
		for i, item := range pb.Elements {
			value, err := FromElement(item)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			if err := list.Add(value, value.CreatedAt()); err != nil {
				return nil, err
			}
		}
		elem = crdt.NewArray(list, createdAt)
	case PrimitiveType:
		valueType, err := fromValueType(pb.ValueType)
		if err != nil {
			return nil, err
		}
		value, err := crdt.PrimitiveValueFromBytes(valueType, pb.Value)
		if err != nil {
			return nil, err
		}
		if elem, err = crdt.NewPrimitive(value, createdAt); err != nil {
			return nil, err
		}
	case CounterType:
		n, err := strconv.ParseInt(pb.Number, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "counter value %q", pb.Number)
		}
		counterType := crdt.LongCnt
		if pb.ValueType == "integer" {
			counterType = crdt.IntegerCnt
		}
		if elem, err = crdt.NewCounter(counterType, n, createdAt); err != nil {
			return nil, err
		}
	case TextType:
		text := crdt.NewText(crdt.NewRGATreeSplit(), createdAt)
		for _, node := range pb.Nodes {
			if err := appendTextNode(text, node); err != nil {
				return nil, err
			}
		}
		elem = text
	case TreeType:
		root, err := FromTreeNode(pb.Root)
		if err != nil {
			return nil, err
		}
		elem = crdt.NewTree(root, createdAt)
	default:
		return nil, errors.Wrapf(ErrUnsupportedElement, "type %q", pb.Type)
	}

	movedAt, err := FromTicket(pb.MovedAt)
	if err != nil {
		return nil, err
	}
	removedAt, err := FromTicket(pb.RemovedAt)
	if err != nil {
		return nil, err
	}
	elem.SetMovedAt(movedAt)
	elem.SetRemovedAt(removedAt)
	return elem, nil
}

func fromValueType(name string) (crdt.ValueType, error) {
	for t := crdt.Null; t <= crdt.Date; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, errors.Wrapf(crdt.ErrUnsupportedType, "value type %q", name)
}

func appendTextNode(text *crdt.Text, pb TextNode) error {
	id, err := fromTextNodeID(pb.ID)
	if err != nil {
		return err
	}
	attrs, err := fromRHT(pb.Attributes)
	if err != nil {
		return err
	}
	removedAt, err := FromTicket(pb.RemovedAt)
	if err != nil {
		return err
	}
	var insPrevID *crdt.RGATreeSplitNodeID
	if pb.InsPrevID != nil {
		if insPrevID, err = fromTextNodeID(*pb.InsPrevID); err != nil {
			return err
		}
	}
	return text.AppendNode(id, crdt.NewTextValue(pb.Value, attrs), removedAt, insPrevID)
}

func fromTextNodeID(pb TextNodeID) (*crdt.RGATreeSplitNodeID, error) {
	createdAt, err := fromRequiredTicket(pb.CreatedAt, "text node created_at")
	if err != nil {
		return nil, err
	}
	return crdt.NewRGATreeSplitNodeID(createdAt, pb.Offset), nil
}

// FromTextNodePos decodes a text position.
func FromTextNodePos(pb *TextNodePos) (*crdt.RGATreeSplitNodePos, error) {
	if pb == nil {
		return nil, errors.Wrap(ErrMissingField, "text position")
	}
	id, err := fromTextNodeID(TextNodeID{CreatedAt: pb.CreatedAt, Offset: pb.Offset})
	if err != nil {
		return nil, err
	}
	return crdt.NewRGATreeSplitNodePos(id, pb.RelativeOffset), nil
}

// FromTreeNode decodes a node with its descendants. Children are decoded first, so that
// appending them computes the sizes of their ancestors.
func FromTreeNode(pb *TreeNode) (*crdt.TreeNode, error) {
	if pb == nil {
		return nil, errors.Wrap(ErrMissingField, "tree node")
	}
	id, err := fromTreeNodeID(pb.ID)
	if err != nil {
		return nil, err
	}
	var node *crdt.TreeNode
	if pb.Type == index.DefaultTextType {
		node = crdt.NewTreeNode(id, pb.Type, nil, pb.Value)
	} else {
		var attrs *crdt.RHT
		if len(pb.Attributes) > 0 {
			if attrs, err = fromRHT(pb.Attributes); err != nil {
				return nil, err
			}
		}
		node = crdt.NewTreeNode(id, pb.Type, attrs)
	}
	removedAt, err := FromTicket(pb.RemovedAt)
	if err != nil {
		return nil, err
	}
	node.SetRemovedAt(removedAt)
	if node.InsPrevID, err = fromTreeNodeIDPtr(pb.InsPrevID); err != nil {
		return nil, err
	}
	if node.InsNextID, err = fromTreeNodeIDPtr(pb.InsNextID); err != nil {
		return nil, err
	}
	for _, child := range pb.Children {
		childNode, err := FromTreeNode(child)
		if err != nil {
			return nil, err
		}
		if err := node.Append(childNode); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func fromTreeNodeID(pb TreeNodeID) (*crdt.TreeNodeID, error) {
	createdAt, err := fromRequiredTicket(pb.CreatedAt, "tree node created_at")
	if err != nil {
		return nil, err
	}
	return crdt.NewTreeNodeID(createdAt, pb.Offset), nil
}

func fromTreeNodeIDPtr(pb *TreeNodeID) (*crdt.TreeNodeID, error) {
	if pb == nil {
		return nil, nil
	}
	return fromTreeNodeID(*pb)
}

// FromTreePos decodes a tree position.
func FromTreePos(pb *TreePos) (*crdt.TreePos, error) {
	if pb == nil {
		return nil, errors.Wrap(ErrMissingField, "tree position")
	}
	parentID, err := fromTreeNodeID(pb.ParentID)
	if err != nil {
		return nil, err
	}
	leftSiblingID, err := fromTreeNodeID(pb.LeftSiblingID)
	if err != nil {
		return nil, err
	}
	return crdt.NewTreePos(parentID, leftSiblingID), nil
}
