package document

import (
	"fmt"

	"github.com/go-kit/kit/log/level"

	"github.com/brunokim/causal-doc/presence"
)

// WatchResponseType is the kind of a WatchResponse.
type WatchResponseType int

const (
	// WatchInitialization lists the clients watching the document when the stream opens.
	WatchInitialization WatchResponseType = iota
	// DocumentChanged tells that a client pushed changes.
	DocumentChanged
	// DocumentWatched tells that a client started watching the document.
	DocumentWatched
	// DocumentUnwatched tells that a client stopped watching the document.
	DocumentUnwatched
)

func (t WatchResponseType) String() string {
	switch t {
	case WatchInitialization:
		return "initialization"
	case DocumentChanged:
		return "document-changed"
	case DocumentWatched:
		return "document-watched"
	case DocumentUnwatched:
		return "document-unwatched"
	}
	return fmt.Sprintf("WatchResponseType(%d)", int(t))
}

// WatchResponse is a message of the watch stream of a document.
type WatchResponse struct {
	Type WatchResponseType `json:"type"`
	// ClientIDs are the clients online at initialization.
	ClientIDs []string `json:"client_ids,omitempty"`
	// Publisher is the client that caused the event.
	Publisher string `json:"publisher,omitempty"`
}

// ApplyWatchStream updates the online clients from a watch message, and notifies the
// presence subscribers. DocumentChanged is left to the caller, which should synchronize.
func (d *Document) ApplyWatchStream(resp WatchResponse) {
	me := d.ActorID().String()
	switch resp.Type {
	case WatchInitialization:
		d.onlineClients.Clear()
		for _, id := range resp.ClientIDs {
			if id != me {
				d.onlineClients.Add(id)
			}
		}
		d.publish(Event{Type: Initialized, Presences: d.Presences()})
	case DocumentWatched:
		if resp.Publisher == me {
			return
		}
		d.onlineClients.Add(resp.Publisher)
		// Without a presence, the client is still attaching: Watched is published when
		// its first presence arrives.
		if data, ok := d.presences.Load(resp.Publisher); ok {
			d.publish(Event{Type: Watched, Actor: resp.Publisher, Presence: data.DeepCopy()})
		}
	case DocumentUnwatched:
		if !d.onlineClients.Contains(resp.Publisher) {
			return
		}
		d.onlineClients.Remove(resp.Publisher)
		if _, ok := d.presences.Load(resp.Publisher); ok {
			d.publish(Event{Type: Unwatched, Actor: resp.Publisher})
		}
	}
	level.Debug(d.logger).Log("msg", "applied watch response", "type", resp.Type, "publisher", resp.Publisher)
}

// MyPresence returns the presence of this client.
func (d *Document) MyPresence() presence.Data {
	data, _ := d.presences.Load(d.ActorID().String())
	return data.DeepCopy()
}

// Presence returns the presence of a client, if it is online or this one.
func (d *Document) Presence(actorID string) (presence.Data, bool) {
	if actorID != d.ActorID().String() && !d.onlineClients.Contains(actorID) {
		return nil, false
	}
	data, ok := d.presences.Load(actorID)
	return data.DeepCopy(), ok
}

// Presences returns the presences of this client and of the online clients that have
// one.
func (d *Document) Presences() map[string]presence.Data {
	me := d.ActorID().String()
	presences := make(map[string]presence.Data)
	d.presences.Range(func(actorID string, data presence.Data) bool {
		if actorID == me || d.onlineClients.Contains(actorID) {
			presences[actorID] = data.DeepCopy()
		}
		return true
	})
	return presences
}

// OnlineClients returns the other clients watching the document, in no particular
// order.
func (d *Document) OnlineClients() []string {
	return d.onlineClients.ToSlice()
}
