package document

import (
	"strings"
	"sync"

	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
)

// EventType is the kind of an Event.
type EventType string

const (
	// LocalChange is published after an update, undo or redo.
	LocalChange EventType = "local-change"
	// RemoteChange is published after applying each change from other clients.
	RemoteChange EventType = "remote-change"
	// Snapshot is published after replacing the document with a snapshot.
	Snapshot EventType = "snapshot"
	// StatusChanged is published when the document is attached, detached or removed.
	StatusChanged EventType = "status-changed"

	// Initialized is published when the watch stream lists the online clients.
	Initialized EventType = "initialized"
	// Watched is published when a client comes online with a presence.
	Watched EventType = "watched"
	// Unwatched is published when a client goes offline.
	Unwatched EventType = "unwatched"
	// PresenceChanged is published when an online client, or this one, changes presence.
	PresenceChanged EventType = "presence-changed"
)

// IsPresenceEvent returns whether t is about presences rather than content.
func (t EventType) IsPresenceEvent() bool {
	switch t {
	case Initialized, Watched, Unwatched, PresenceChanged:
		return true
	}
	return false
}

// Event is a notification to subscribers. Only the fields of its type are set.
type Event struct {
	Type EventType
	// Actor is the author of a change, or the client of a presence event.
	Actor   string
	Message string
	OpInfos []operations.OpInfo

	Presence  presence.Data
	Presences map[string]presence.Data
	Status    Status
}

// PresenceTarget subscribes to presence events only.
const PresenceTarget = "presence"

type subscriber struct {
	id     int
	target string
	fn     func(Event)
}

// subscribers holds the callbacks registered with Subscribe.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func (s *subscribers) add(target string, fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, target: target, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// publish delivers event to every interested subscriber, in subscription order. Change
// events reach path subscribers only with the infos under their path, and not at all if
// none is.
func (s *subscribers) publish(event Event) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		switch {
		case sub.target == "":
			sub.fn(event)
		case sub.target == PresenceTarget:
			if event.Type.IsPresenceEvent() {
				sub.fn(event)
			}
		case strings.HasPrefix(sub.target, "$"):
			if event.Type == Snapshot {
				sub.fn(event)
				continue
			}
			if event.Type != LocalChange && event.Type != RemoteChange {
				continue
			}
			infos := filterInfos(event.OpInfos, sub.target)
			if len(infos) == 0 {
				continue
			}
			filtered := event
			filtered.OpInfos = infos
			sub.fn(filtered)
		}
	}
}

func filterInfos(infos []operations.OpInfo, target string) []operations.OpInfo {
	var filtered []operations.OpInfo
	for _, info := range infos {
		if affects(info, target) {
			filtered = append(filtered, info)
		}
	}
	return filtered
}

// affects returns whether info changed the element at target or one of its descendants.
// An object member set or removed counts as a change to the member's own path.
func affects(info operations.OpInfo, target string) bool {
	if isSameOrChild(info.Path, target) {
		return true
	}
	if info.Key != "" {
		return isSameOrChild(info.Path+"."+info.Key, target)
	}
	return false
}

func isSameOrChild(path, target string) bool {
	return path == target || strings.HasPrefix(path, target+".")
}
