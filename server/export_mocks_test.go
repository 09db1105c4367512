package server

import "github.com/brunokim/causal-doc/ticket"

// MockActorIDs replaces the IDs assigned to activated clients. Returns a function to
// undo the mocking.
func MockActorIDs(ids ...ticket.ActorID) func() {
	var i int
	old := newActorID
	newActorID = func() ticket.ActorID {
		id := ids[i]
		i++
		return id
	}
	return func() { newActorID = old }
}
