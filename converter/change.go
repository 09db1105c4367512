package converter

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/ticket"
)

// ChangeID is the wire form of a change.ID.
type ChangeID struct {
	ClientSeq uint32 `json:"client_seq"`
	ServerSeq string `json:"server_seq,omitempty"`
	Lamport   string `json:"lamport"`
	ActorID   string `json:"actor_id"`
}

// PresenceChange is the wire form of a presence.Change.
type PresenceChange struct {
	Type     string            `json:"type"`
	Presence map[string]string `json:"presence,omitempty"`
}

// Change is the wire form of a change.Change.
type Change struct {
	ID             ChangeID        `json:"id"`
	Message        string          `json:"message,omitempty"`
	Operations     []Operation     `json:"operations"`
	PresenceChange *PresenceChange `json:"presence_change,omitempty"`
}

// ChangePack is the wire form of a change.Pack.
type ChangePack struct {
	DocumentKey     string     `json:"document_key"`
	Checkpoint      Checkpoint `json:"checkpoint"`
	Changes         []Change   `json:"changes,omitempty"`
	Snapshot        []byte     `json:"snapshot,omitempty"`
	MinSyncedTicket *Ticket    `json:"min_synced_ticket,omitempty"`
	IsRemoved       bool       `json:"is_removed,omitempty"`
}

// ToChangeID encodes id.
func ToChangeID(id change.ID) ChangeID {
	pb := ChangeID{
		ClientSeq: id.ClientSeq(),
		Lamport:   strconv.FormatInt(id.Lamport(), 10),
		ActorID:   id.ActorID().String(),
	}
	if id.ServerSeq() != change.InitialServerSeq {
		pb.ServerSeq = strconv.FormatInt(id.ServerSeq(), 10)
	}
	return pb
}

// FromChangeID decodes id.
func FromChangeID(pb ChangeID) (change.ID, error) {
	var serverSeq int64
	if pb.ServerSeq != "" {
		var err error
		if serverSeq, err = strconv.ParseInt(pb.ServerSeq, 10, 64); err != nil {
			return change.ID{}, errors.Wrapf(err, "server seq %q", pb.ServerSeq)
		}
	}
	lamport, err := strconv.ParseInt(pb.Lamport, 10, 64)
	if err != nil {
		return change.ID{}, errors.Wrapf(err, "lamport %q", pb.Lamport)
	}
	actorID, err := ticket.ActorIDFromHex(pb.ActorID)
	if err != nil {
		return change.ID{}, errors.Wrapf(err, "actor %q", pb.ActorID)
	}
	return change.NewID(pb.ClientSeq, serverSeq, lamport, actorID), nil
}

// ToChange encodes c.
func ToChange(c *change.Change) (*Change, error) {
	ops, err := ToOperations(c.Operations())
	if err != nil {
		return nil, errors.Wrapf(err, "change %s", c.ID())
	}
	pb := &Change{
		ID:         ToChangeID(c.ID()),
		Message:    c.Message(),
		Operations: ops,
	}
	if pc := c.PresenceChange(); pc != nil {
		pb.PresenceChange = &PresenceChange{Type: pc.Type.String(), Presence: pc.Presence}
	}
	return pb, nil
}

// FromChange decodes a change.
func FromChange(pb *Change) (*change.Change, error) {
	id, err := FromChangeID(pb.ID)
	if err != nil {
		return nil, err
	}
	ops, err := FromOperations(pb.Operations)
	if err != nil {
		return nil, errors.Wrapf(err, "change %s", id)
	}
	var pc *presence.Change
	if pb.PresenceChange != nil {
		pc = &presence.Change{Type: presence.Put, Presence: pb.PresenceChange.Presence}
		if pb.PresenceChange.Type == presence.Clear.String() {
			pc = &presence.Change{Type: presence.Clear}
		}
	}
	return change.New(id, pb.Message, ops, pc), nil
}

// ToChanges encodes changes.
func ToChanges(changes []*change.Change) ([]Change, error) {
	encoded := make([]Change, 0, len(changes))
	for _, c := range changes {
		pb, err := ToChange(c)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, *pb)
	}
	return encoded, nil
}

// FromChanges decodes changes.
func FromChanges(pbs []Change) ([]*change.Change, error) {
	changes := make([]*change.Change, 0, len(pbs))
	for i := range pbs {
		c, err := FromChange(&pbs[i])
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// ToChangePack encodes pack.
func ToChangePack(pack *change.Pack) (*ChangePack, error) {
	changes, err := ToChanges(pack.Changes)
	if err != nil {
		return nil, err
	}
	return &ChangePack{
		DocumentKey:     pack.DocumentKey,
		Checkpoint:      ToCheckpoint(pack.Checkpoint),
		Changes:         changes,
		Snapshot:        pack.Snapshot,
		MinSyncedTicket: ToTicket(pack.MinSyncedTicket),
		IsRemoved:       pack.IsRemoved,
	}, nil
}

// FromChangePack decodes a pack.
func FromChangePack(pb *ChangePack) (*change.Pack, error) {
	cp, err := FromCheckpoint(pb.Checkpoint)
	if err != nil {
		return nil, err
	}
	changes, err := FromChanges(pb.Changes)
	if err != nil {
		return nil, err
	}
	minSyncedTicket, err := FromTicket(pb.MinSyncedTicket)
	if err != nil {
		return nil, err
	}
	pack := change.NewPack(pb.DocumentKey, cp, changes, pb.Snapshot)
	pack.MinSyncedTicket = minSyncedTicket
	pack.IsRemoved = pb.IsRemoved
	return pack, nil
}

// MarshalChangePack returns the JSON of pack.
func MarshalChangePack(pack *change.Pack) ([]byte, error) {
	pb, err := ToChangePack(pack)
	if err != nil {
		return nil, err
	}
	bs, err := json.Marshal(pb)
	return bs, errors.Wrap(err, "marshal change pack")
}

// UnmarshalChangePack parses the JSON of a pack.
func UnmarshalChangePack(bs []byte) (*change.Pack, error) {
	pb := new(ChangePack)
	if err := json.Unmarshal(bs, pb); err != nil {
		return nil, errors.Wrap(err, "unmarshal change pack")
	}
	return FromChangePack(pb)
}
