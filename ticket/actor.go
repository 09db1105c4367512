package ticket

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// ActorIDSize is the number of bytes of an actor ID.
const ActorIDSize = 12

var (
	// InitialActorID is the actor of documents that were never attached.
	InitialActorID = ActorID{}
	// MaxActorID is the greatest actor ID.
	MaxActorID = ActorID{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

var (
	ErrInvalidActorID = errors.New("invalid actor ID")
)

// ActorID identifies a replica. Its wire form is a 24-char hex string.
type ActorID [ActorIDSize]byte

// ActorIDFromHex parses the hex form of an actor ID.
func ActorIDFromHex(str string) (ActorID, error) {
	var id ActorID
	if len(str) != ActorIDSize*2 {
		return id, fmt.Errorf("%q: %w", str, ErrInvalidActorID)
	}
	bs, err := hex.DecodeString(str)
	if err != nil {
		return id, fmt.Errorf("%q: %w", str, ErrInvalidActorID)
	}
	copy(id[:], bs)
	return id, nil
}

// ActorIDFromBytes copies bytes into an actor ID.
func ActorIDFromBytes(bs []byte) (ActorID, error) {
	var id ActorID
	if len(bs) != ActorIDSize {
		return id, fmt.Errorf("%d bytes: %w", len(bs), ErrInvalidActorID)
	}
	copy(id[:], bs)
	return id, nil
}

// String returns the hex form of the actor ID.
func (id ActorID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the actor ID bytes.
func (id ActorID) Bytes() []byte {
	bs := make([]byte, ActorIDSize)
	copy(bs, id[:])
	return bs
}

// Compare orders actor IDs lexicographically by their bytes.
func (id ActorID) Compare(other ActorID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText encodes the actor ID as hex.
func (id ActorID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes the hex form of the actor ID.
func (id *ActorID) UnmarshalText(text []byte) error {
	parsed, err := ActorIDFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
