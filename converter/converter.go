/*
Package converter encodes changes, packs and snapshots of a document as JSON.

Tickets keep their lamport timestamp as a decimal string, so that 64-bit values survive
JSON readers that only know doubles:

	{"lamport":"42","delimiter":3,"actor_id":"000000000000000000000001"}

Snapshots carry every element of a document, including tombstones, split text runs and
removed tree nodes, so a replica can continue editing from one.
*/
package converter

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

var (
	// ErrUnsupportedOperation is returned for operations without a wire form.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrUnsupportedElement is returned for elements without a wire form.
	ErrUnsupportedElement = errors.New("unsupported element")
	// ErrMissingField is returned when decoding a message without a required field.
	ErrMissingField = errors.New("missing field")
)

// Ticket is the wire form of a ticket.Ticket.
type Ticket struct {
	Lamport   string `json:"lamport"`
	Delimiter uint32 `json:"delimiter"`
	ActorID   string `json:"actor_id"`
}

// ToTicket encodes t, which may be nil.
func ToTicket(t *ticket.Ticket) *Ticket {
	if t == nil {
		return nil
	}
	return &Ticket{
		Lamport:   strconv.FormatInt(t.Lamport(), 10),
		Delimiter: t.Delimiter(),
		ActorID:   t.ActorIDHex(),
	}
}

// FromTicket decodes t, which may be nil.
func FromTicket(t *Ticket) (*ticket.Ticket, error) {
	if t == nil {
		return nil, nil
	}
	lamport, err := strconv.ParseInt(t.Lamport, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "lamport %q", t.Lamport)
	}
	actorID, err := ticket.ActorIDFromHex(t.ActorID)
	if err != nil {
		return nil, errors.Wrapf(err, "actor %q", t.ActorID)
	}
	return ticket.New(lamport, t.Delimiter, actorID), nil
}

func fromRequiredTicket(t *Ticket, field string) (*ticket.Ticket, error) {
	if t == nil {
		return nil, errors.Wrap(ErrMissingField, field)
	}
	return FromTicket(t)
}

// Checkpoint is the wire form of a change.Checkpoint.
type Checkpoint struct {
	ServerSeq string `json:"server_seq"`
	ClientSeq uint32 `json:"client_seq"`
}

// ToCheckpoint encodes cp.
func ToCheckpoint(cp change.Checkpoint) Checkpoint {
	return Checkpoint{
		ServerSeq: strconv.FormatInt(cp.ServerSeq, 10),
		ClientSeq: cp.ClientSeq,
	}
}

// FromCheckpoint decodes cp.
func FromCheckpoint(cp Checkpoint) (change.Checkpoint, error) {
	if cp.ServerSeq == "" {
		return change.NewCheckpoint(0, cp.ClientSeq), nil
	}
	serverSeq, err := strconv.ParseInt(cp.ServerSeq, 10, 64)
	if err != nil {
		return change.Checkpoint{}, errors.Wrapf(err, "server seq %q", cp.ServerSeq)
	}
	return change.NewCheckpoint(serverSeq, cp.ClientSeq), nil
}

// RHTNode is the wire form of an attribute, live or removed.
type RHTNode struct {
	Key       string  `json:"key"`
	Value     string  `json:"value,omitempty"`
	UpdatedAt *Ticket `json:"updated_at"`
	IsRemoved bool    `json:"is_removed,omitempty"`
}

func toRHT(rht *crdt.RHT) []RHTNode {
	if rht == nil {
		return nil
	}
	var nodes []RHTNode
	for _, node := range rht.Nodes() {
		nodes = append(nodes, RHTNode{
			Key:       node.Key(),
			Value:     node.Value(),
			UpdatedAt: ToTicket(node.UpdatedAt()),
			IsRemoved: node.IsRemoved(),
		})
	}
	return nodes
}

func fromRHT(nodes []RHTNode) (*crdt.RHT, error) {
	rht := crdt.NewRHT()
	for _, node := range nodes {
		updatedAt, err := fromRequiredTicket(node.UpdatedAt, "attribute updated_at")
		if err != nil {
			return nil, err
		}
		rht.SetInternal(node.Key, node.Value, updatedAt, node.IsRemoved)
	}
	return rht, nil
}

func toTicketMap(m map[string]*ticket.Ticket) map[string]*Ticket {
	encoded := make(map[string]*Ticket, len(m))
	for actor, t := range m {
		encoded[actor] = ToTicket(t)
	}
	return encoded
}

// fromTicketMap always returns a non-nil map: a nil map marks an operation as local.
func fromTicketMap(m map[string]*Ticket) (map[string]*ticket.Ticket, error) {
	decoded := make(map[string]*ticket.Ticket, len(m))
	for actor, t := range m {
		tk, err := FromTicket(t)
		if err != nil {
			return nil, errors.Wrapf(err, "max created at of %s", actor)
		}
		decoded[actor] = tk
	}
	return decoded, nil
}
