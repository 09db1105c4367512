package crdt

import (
	"sort"
	"strings"

	"github.com/brunokim/causal-doc/ticket"
)

// RHTNode is an entry of a replicated hashtable.
type RHTNode struct {
	key       string
	val       string
	updatedAt *ticket.Ticket
	isRemoved bool
}

func newRHTNode(key, val string, updatedAt *ticket.Ticket, isRemoved bool) *RHTNode {
	return &RHTNode{
		key:       key,
		val:       val,
		updatedAt: updatedAt,
		isRemoved: isRemoved,
	}
}

// Key returns the key of this node.
func (n *RHTNode) Key() string { return n.key }

// Value returns the value of this node.
func (n *RHTNode) Value() string { return n.val }

// UpdatedAt returns the time of the last write.
func (n *RHTNode) UpdatedAt() *ticket.Ticket { return n.updatedAt }

// IsRemoved returns whether the node is a tombstone.
func (n *RHTNode) IsRemoved() bool { return n.isRemoved }

// RemovedAt returns the time of the removal, or nil if the node is live.
func (n *RHTNode) RemovedAt() *ticket.Ticket {
	if n.isRemoved {
		return n.updatedAt
	}
	return nil
}

// IDString identifies the node among every node of the document.
func (n *RHTNode) IDString() string {
	return n.updatedAt.Key() + ":" + n.key
}

// RHT is a replicated hashtable of strings, used for style attributes. For each key only
// the write with the greatest ticket is visible, independently of arrival order.
type RHT struct {
	nodeMapByKey map[string]*RHTNode
	numRemoved   int
}

// NewRHT creates an empty hashtable.
func NewRHT() *RHT {
	return &RHT{nodeMapByKey: make(map[string]*RHTNode)}
}

// Get returns the live value of key, or "".
func (rht *RHT) Get(key string) string {
	if node, ok := rht.nodeMapByKey[key]; ok && !node.isRemoved {
		return node.val
	}
	return ""
}

// Has returns whether key has a live value.
func (rht *RHT) Has(key string) bool {
	node, ok := rht.nodeMapByKey[key]
	return ok && !node.isRemoved
}

// Set writes value at key if executedAt is newer than the current write. It returns the
// tombstone it replaced, which becomes garbage.
func (rht *RHT) Set(key, value string, executedAt *ticket.Ticket) *RHTNode {
	prev, ok := rht.nodeMapByKey[key]
	if ok && !executedAt.After(prev.updatedAt) {
		return nil
	}
	rht.nodeMapByKey[key] = newRHTNode(key, value, executedAt, false)
	if ok && prev.isRemoved {
		rht.numRemoved--
		return prev
	}
	return nil
}

// SetInternal stores a node as-is, used when decoding snapshots.
func (rht *RHT) SetInternal(key, value string, updatedAt *ticket.Ticket, removed bool) {
	rht.nodeMapByKey[key] = newRHTNode(key, value, updatedAt, removed)
	if removed {
		rht.numRemoved++
	}
}

// Remove tombstones key if executedAt is newer than the current write, even if the key
// was never written. It returns the nodes that became garbage.
func (rht *RHT) Remove(key string, executedAt *ticket.Ticket) []*RHTNode {
	prev, ok := rht.nodeMapByKey[key]
	if ok && !executedAt.After(prev.updatedAt) {
		return nil
	}
	var garbage []*RHTNode
	value := ""
	if ok {
		value = prev.val
		if prev.isRemoved {
			rht.numRemoved--
			garbage = append(garbage, prev)
		}
	}
	node := newRHTNode(key, value, executedAt, true)
	rht.nodeMapByKey[key] = node
	rht.numRemoved++
	return append(garbage, node)
}

// Len returns the number of live keys.
func (rht *RHT) Len() int {
	return len(rht.nodeMapByKey) - rht.numRemoved
}

// Elements returns the live entries, or nil if there are none.
func (rht *RHT) Elements() map[string]string {
	var members map[string]string
	for _, node := range rht.nodeMapByKey {
		if node.isRemoved {
			continue
		}
		if members == nil {
			members = make(map[string]string)
		}
		members[node.key] = node.val
	}
	return members
}

// Nodes returns every node, including tombstones, sorted by key.
func (rht *RHT) Nodes() []*RHTNode {
	nodes := make([]*RHTNode, 0, len(rht.nodeMapByKey))
	for _, node := range rht.nodeMapByKey {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].key < nodes[j].key })
	return nodes
}

// GCPairs returns the tombstones held by this table.
func (rht *RHT) GCPairs() []GCPair {
	var pairs []GCPair
	for _, node := range rht.Nodes() {
		if node.isRemoved {
			pairs = append(pairs, GCPair{Parent: rht, Child: node})
		}
	}
	return pairs
}

func (rht *RHT) purge(child GCChild) error {
	node, ok := child.(*RHTNode)
	if !ok {
		return ErrChildNotFound
	}
	if current, ok := rht.nodeMapByKey[node.key]; ok && current == node {
		delete(rht.nodeMapByKey, node.key)
		rht.numRemoved--
	}
	return nil
}

// Marshal returns the live entries as a JSON object with sorted keys.
func (rht *RHT) Marshal() string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, node := range rht.Nodes() {
		if node.isRemoved {
			continue
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(`"` + EscapeString(node.key) + `":"` + EscapeString(node.val) + `"`)
	}
	sb.WriteString("}")
	return sb.String()
}

// ToXMLAttributes renders live entries as XML attributes, with a leading space.
func (rht *RHT) ToXMLAttributes() string {
	var sb strings.Builder
	for _, node := range rht.Nodes() {
		if !node.isRemoved {
			sb.WriteString(" " + node.key + `="` + EscapeString(node.val) + `"`)
		}
	}
	return sb.String()
}

// DeepCopy copies the table, including tombstones.
func (rht *RHT) DeepCopy() *RHT {
	copied := NewRHT()
	for _, node := range rht.nodeMapByKey {
		copied.SetInternal(node.key, node.val, node.updatedAt, node.isRemoved)
	}
	return copied
}
