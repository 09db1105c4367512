package converter

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/presence"
)

// Snapshot is the state of a document at some server sequence: its root with every
// tombstone, the presences of its clients, and the lamport timestamp of its newest
// change.
type Snapshot struct {
	Root      *crdt.Root
	Presences *presence.Map
	Lamport   int64
}

type snapshotJSON struct {
	Root      *Element                     `json:"root"`
	Presences map[string]map[string]string `json:"presences,omitempty"`
	Lamport   string                       `json:"lamport"`
}

// SnapshotToBytes encodes a snapshot of root and presences.
func SnapshotToBytes(root *crdt.Root, presences *presence.Map, lamport int64) ([]byte, error) {
	obj, err := ToElement(root.Object())
	if err != nil {
		return nil, err
	}
	pb := snapshotJSON{Root: obj, Lamport: strconv.FormatInt(lamport, 10)}
	if presences != nil && presences.Len() > 0 {
		pb.Presences = make(map[string]map[string]string)
		presences.Range(func(actorID string, data presence.Data) bool {
			pb.Presences[actorID] = data
			return true
		})
	}
	bs, err := json.Marshal(pb)
	return bs, errors.Wrap(err, "marshal snapshot")
}

// BytesToSnapshot decodes a snapshot. The root registers every element and tombstone,
// ready for garbage collection.
func BytesToSnapshot(bs []byte) (*Snapshot, error) {
	var pb snapshotJSON
	if err := json.Unmarshal(bs, &pb); err != nil {
		return nil, errors.Wrap(err, "unmarshal snapshot")
	}
	elem, err := FromElement(pb.Root)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot root")
	}
	obj, ok := elem.(*crdt.Object)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedElement, "snapshot root %T", elem)
	}
	lamport, err := strconv.ParseInt(pb.Lamport, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "lamport %q", pb.Lamport)
	}
	presences := presence.NewMap()
	for actorID, data := range pb.Presences {
		presences.Store(actorID, data)
	}
	return &Snapshot{
		Root:      crdt.NewRoot(obj),
		Presences: presences,
		Lamport:   lamport,
	}, nil
}
