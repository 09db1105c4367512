package change

import (
	"fmt"
)

// Checkpoint is how far a client and the server have synchronized a document: the last
// server sequence the client received, and the last client sequence the server acked.
type Checkpoint struct {
	ServerSeq int64
	ClientSeq uint32
}

// InitialCheckpoint is the checkpoint of a document never synchronized.
var InitialCheckpoint = NewCheckpoint(InitialServerSeq, InitialClientSeq)

// NewCheckpoint creates a checkpoint.
func NewCheckpoint(serverSeq int64, clientSeq uint32) Checkpoint {
	return Checkpoint{ServerSeq: serverSeq, ClientSeq: clientSeq}
}

// IncreaseClientSeq returns the checkpoint after inc more local changes.
func (cp Checkpoint) IncreaseClientSeq(inc uint32) Checkpoint {
	if inc == 0 {
		return cp
	}
	return NewCheckpoint(cp.ServerSeq, cp.ClientSeq+inc)
}

// SyncClientSeq returns the checkpoint with a client sequence at least clientSeq.
func (cp Checkpoint) SyncClientSeq(clientSeq uint32) Checkpoint {
	if cp.ClientSeq >= clientSeq {
		return cp
	}
	return NewCheckpoint(cp.ServerSeq, clientSeq)
}

// Forward returns the componentwise maximum of both checkpoints.
func (cp Checkpoint) Forward(other Checkpoint) Checkpoint {
	if cp.Equals(other) {
		return cp
	}
	serverSeq, clientSeq := cp.ServerSeq, cp.ClientSeq
	if other.ServerSeq > serverSeq {
		serverSeq = other.ServerSeq
	}
	if other.ClientSeq > clientSeq {
		clientSeq = other.ClientSeq
	}
	return NewCheckpoint(serverSeq, clientSeq)
}

// Equals returns whether both checkpoints are the same.
func (cp Checkpoint) Equals(other Checkpoint) bool {
	return cp == other
}

func (cp Checkpoint) String() string {
	return fmt.Sprintf("serverSeq=%d, clientSeq=%d", cp.ServerSeq, cp.ClientSeq)
}
