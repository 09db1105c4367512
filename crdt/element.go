/*
Package crdt provides the replicated data types that compose a collaborative document.

A document is a tree of elements rooted at an Object. Every element is identified by the
ticket of the operation that created it, and is never physically removed when deleted:
it becomes a tombstone, marked with the ticket of the removal, until every replica has
seen the removal and the Root garbage-collects it.

  - Primitive and Counter are leaves.
  - Object maps keys to elements, resolving concurrent writes with a replicated hashtable
    (RHT) where the greatest ticket wins.
  - Array is a Replicated Growable Array (RGA) [1] indexed by a splay tree.
  - Text is an RGA of text runs that split as they are edited, each run carrying its own
    style attributes [2].
  - Tree is an ordered tree of elements and texts, on top of an index tree that converts
    flat positions into nodes.

[1]: ROH, H.-G. et al. Replicated abstract data types: Building blocks for collaborative
applications.
[2]: BRIOT, L.; URSO, P.; SHAPIRO, M. High responsiveness for group editing CRDTs.
*/
package crdt

import (
	"errors"

	"github.com/brunokim/causal-doc/ticket"
)

var (
	ErrChildNotFound         = errors.New("child not found")
	ErrUnsupportedType       = errors.New("unsupported type")
	ErrNodeNotFound          = errors.New("node not found")
	ErrInvalidPosition       = errors.New("invalid position")
	ErrInvalidTreeOperation  = errors.New("invalid tree operation")
	ErrElementAlreadyPresent = errors.New("element already registered")
)

// Element is a node of the document tree.
type Element interface {
	// CreatedAt is the identity of the element.
	CreatedAt() *ticket.Ticket
	// MovedAt is the last time the element changed position, if ever.
	MovedAt() *ticket.Ticket
	SetMovedAt(*ticket.Ticket)
	// RemovedAt is the time the element became a tombstone, if ever.
	RemovedAt() *ticket.Ticket
	SetRemovedAt(*ticket.Ticket)
	// Remove tombstones the element if removedAt is newer than its position and
	// its current removal. Returns whether the element changed.
	Remove(removedAt *ticket.Ticket) bool
	IsRemoved() bool

	DeepCopy() (Element, error)
	// Marshal returns the JSON view of the element.
	Marshal() string
}

// Container is an element holding other elements.
type Container interface {
	Element

	// Purge physically removes a child.
	Purge(child Element) error
	// Descendants visits every descendant, including tombstones, until callback returns
	// true.
	Descendants(callback func(elem Element, parent Container) bool)
	// DeleteByCreatedAt tombstones the child created at createdAt.
	DeleteByCreatedAt(createdAt, executedAt *ticket.Ticket) (Element, error)
}

// GCElement is an element that keeps removed nodes internally, collected separately
// from the element itself.
type GCElement interface {
	Element

	// GCPairs returns every removed node still held by the element.
	GCPairs() []GCPair
}

// +--------------+
// | Element base |
// +--------------+

// elementTimes holds the tickets shared by every element.
type elementTimes struct {
	createdAt *ticket.Ticket
	movedAt   *ticket.Ticket
	removedAt *ticket.Ticket
}

func (e *elementTimes) CreatedAt() *ticket.Ticket {
	return e.createdAt
}

func (e *elementTimes) MovedAt() *ticket.Ticket {
	return e.movedAt
}

func (e *elementTimes) SetMovedAt(movedAt *ticket.Ticket) {
	e.movedAt = movedAt
}

func (e *elementTimes) RemovedAt() *ticket.Ticket {
	return e.removedAt
}

func (e *elementTimes) SetRemovedAt(removedAt *ticket.Ticket) {
	e.removedAt = removedAt
}

func (e *elementTimes) IsRemoved() bool {
	return e.removedAt != nil
}

// positionedAt is the time the element took its current position.
func (e *elementTimes) positionedAt() *ticket.Ticket {
	if e.movedAt != nil {
		return e.movedAt
	}
	return e.createdAt
}

func (e *elementTimes) Remove(removedAt *ticket.Ticket) bool {
	if removedAt == nil || !removedAt.After(e.positionedAt()) {
		return false
	}
	if e.removedAt != nil && !removedAt.After(e.removedAt) {
		return false
	}
	e.removedAt = removedAt
	return true
}

func (e *elementTimes) copyTimes() elementTimes {
	return elementTimes{
		createdAt: e.createdAt,
		movedAt:   e.movedAt,
		removedAt: e.removedAt,
	}
}

// +----------+
// | GC pairs |
// +----------+

// GCChild is a removed node held by a GCParent.
type GCChild interface {
	IDString() string
	RemovedAt() *ticket.Ticket
}

// GCParent physically removes its GC children.
type GCParent interface {
	purge(child GCChild) error
}

// GCPair binds a removed node to the structure holding it.
type GCPair struct {
	Parent GCParent
	Child  GCChild
}
