package change

import (
	"fmt"

	"github.com/brunokim/causal-doc/ticket"
)

// InitialClientSeq is the sequence before the first change of a client.
const InitialClientSeq = 0

// InitialServerSeq is the sequence of a change not yet pushed.
const InitialServerSeq = 0

// ID identifies a change: the client sequence counts the changes made by one client, the
// server sequence orders every change of the document, and the lamport timestamp stamps
// every ticket issued by the change.
type ID struct {
	clientSeq uint32
	serverSeq int64
	lamport   int64
	actorID   ticket.ActorID
}

// InitialID is the ID of a new document, before its first change.
var InitialID = NewID(InitialClientSeq, InitialServerSeq, ticket.InitialLamport, ticket.InitialActorID)

// NewID creates a change ID.
func NewID(clientSeq uint32, serverSeq, lamport int64, actorID ticket.ActorID) ID {
	return ID{
		clientSeq: clientSeq,
		serverSeq: serverSeq,
		lamport:   lamport,
		actorID:   actorID,
	}
}

// Next returns the ID of the next local change.
func (id ID) Next() ID {
	return ID{
		clientSeq: id.clientSeq + 1,
		lamport:   id.lamport + 1,
		actorID:   id.actorID,
	}
}

// SyncLamport advances the lamport timestamp past a received one, so that the next
// change happens after everything seen.
func (id ID) SyncLamport(otherLamport int64) ID {
	if otherLamport <= id.lamport {
		return id
	}
	id.lamport = otherLamport
	return id
}

// NewTimeTicket returns a ticket of this change.
func (id ID) NewTimeTicket(delimiter uint32) *ticket.Ticket {
	return ticket.New(id.lamport, delimiter, id.actorID)
}

// SetActor returns the ID with another actor.
func (id ID) SetActor(actorID ticket.ActorID) ID {
	id.actorID = actorID
	return id
}

// SetServerSeq returns the ID with the sequence assigned by the server.
func (id ID) SetServerSeq(serverSeq int64) ID {
	id.serverSeq = serverSeq
	return id
}

func (id ID) ClientSeq() uint32       { return id.clientSeq }
func (id ID) ServerSeq() int64        { return id.serverSeq }
func (id ID) Lamport() int64          { return id.lamport }
func (id ID) ActorID() ticket.ActorID { return id.actorID }

func (id ID) String() string {
	return fmt.Sprintf("%d:%d:%s", id.lamport, id.clientSeq, id.actorID)
}
