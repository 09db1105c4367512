/*
Package ticket provides the logical clock used to identify and order every change made to a
replicated document.

A ticket is a Lamport timestamp extended with the actor that issued it and a delimiter that
distinguishes the many tickets one change may issue. Tickets are totally ordered by
(lamport, actorID, delimiter), so two replicas that see the same tickets always agree on which
one is newer.
*/
package ticket

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// InitialLamport is the lamport of the first ticket.
	InitialLamport = 0
	// MaxLamport is the largest representable lamport.
	MaxLamport = math.MaxInt64

	// InitialDelimiter is the delimiter of the first ticket of a change.
	InitialDelimiter = 0
	// MaxDelimiter is the largest representable delimiter.
	MaxDelimiter = math.MaxUint32
)

var (
	// InitialTicket is the ticket that precedes every other ticket.
	InitialTicket = New(InitialLamport, InitialDelimiter, InitialActorID)
	// MaxTicket is the ticket that follows every other ticket.
	MaxTicket = New(MaxLamport, MaxDelimiter, MaxActorID)
)

// Ticket is a logical timestamp. Tickets are immutable and shared by pointer.
type Ticket struct {
	lamport   int64
	delimiter uint32
	actorID   ActorID
}

// New creates a ticket.
func New(lamport int64, delimiter uint32, actorID ActorID) *Ticket {
	return &Ticket{
		lamport:   lamport,
		delimiter: delimiter,
		actorID:   actorID,
	}
}

// Lamport returns the lamport component.
func (t *Ticket) Lamport() int64 { return t.lamport }

// Delimiter returns the delimiter component.
func (t *Ticket) Delimiter() uint32 { return t.delimiter }

// ActorID returns the actor that issued this ticket.
func (t *Ticket) ActorID() ActorID { return t.actorID }

// ActorIDHex returns the actor in its wire form.
func (t *Ticket) ActorIDHex() string { return t.actorID.String() }

// Key returns a string that identifies the ticket, suitable for map keys.
func (t *Ticket) Key() string {
	return strconv.FormatInt(t.lamport, 10) + ":" + t.actorID.String() + ":" +
		strconv.FormatUint(uint64(t.delimiter), 10)
}

// String returns the ticket in a compact form.
func (t *Ticket) String() string {
	return t.Key()
}

// ToTestString returns a short form of the ticket, with only the last two hex digits of
// the actor.
func (t *Ticket) ToTestString() string {
	hex := t.actorID.String()
	return fmt.Sprintf("%d:%s:%d", t.lamport, hex[len(hex)-2:], t.delimiter)
}

// SetActorID returns a copy of the ticket issued by another actor.
func (t *Ticket) SetActorID(actorID ActorID) *Ticket {
	return New(t.lamport, t.delimiter, actorID)
}

// Next returns the ticket that immediately follows this one for the same actor.
func (t *Ticket) Next() *Ticket {
	if t.delimiter == MaxDelimiter {
		return New(t.lamport+1, InitialDelimiter, t.actorID)
	}
	return New(t.lamport, t.delimiter+1, t.actorID)
}

// After returns whether this ticket is strictly newer than other.
func (t *Ticket) After(other *Ticket) bool {
	return t.Compare(other) > 0
}

// Equal returns whether both tickets have the same components.
func (t *Ticket) Equal(other *Ticket) bool {
	return t.Compare(other) == 0
}

// Compare returns -1, 0 or 1 if this ticket is older, equal or newer than other.
func (t *Ticket) Compare(other *Ticket) int {
	switch {
	case t.lamport > other.lamport:
		return 1
	case t.lamport < other.lamport:
		return -1
	}
	if cmp := t.actorID.Compare(other.actorID); cmp != 0 {
		return cmp
	}
	switch {
	case t.delimiter > other.delimiter:
		return 1
	case t.delimiter < other.delimiter:
		return -1
	}
	return 0
}
