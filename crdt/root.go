package crdt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/brunokim/causal-doc/ticket"
)

// ElementPair binds an element to the container holding it. The root object has no
// parent.
type ElementPair struct {
	Element Element
	Parent  Container
}

// Root is the registry of every element of a document, reachable by creation time. It
// keeps the tombstones that may be garbage-collected: removed elements, and removed
// nodes held inside texts, trees and attributes.
//
// Elements don't point to their parents; the registry keeps that relation instead.
type Root struct {
	object       *Object
	elementMap   map[string]ElementPair
	gcElementSet mapset.Set[string]
	gcPairMap    map[string]GCPair
}

// NewRoot creates a registry for the tree under object, registering every element,
// tombstone and GC pair found in it.
func NewRoot(object *Object) *Root {
	r := &Root{
		object:       object,
		elementMap:   make(map[string]ElementPair),
		gcElementSet: mapset.NewThreadUnsafeSet[string](),
		gcPairMap:    make(map[string]GCPair),
	}
	r.elementMap[object.CreatedAt().Key()] = ElementPair{Element: object}
	r.registerGCElement(object)
	object.Descendants(func(elem Element, parent Container) bool {
		r.elementMap[elem.CreatedAt().Key()] = ElementPair{Element: elem, Parent: parent}
		if elem.IsRemoved() {
			r.RegisterRemovedElement(elem)
		}
		r.registerGCElement(elem)
		return false
	})
	return r
}

func (r *Root) registerGCElement(elem Element) {
	if gcElem, ok := elem.(GCElement); ok {
		for _, pair := range gcElem.GCPairs() {
			r.RegisterGCPair(pair)
		}
	}
}

// Object returns the root object.
func (r *Root) Object() *Object {
	return r.object
}

// FindByCreatedAt returns the element created at createdAt, or nil.
func (r *Root) FindByCreatedAt(createdAt *ticket.Ticket) Element {
	pair, ok := r.elementMap[createdAt.Key()]
	if !ok {
		return nil
	}
	return pair.Element
}

// FindElementPair returns the element created at createdAt with its parent.
func (r *Root) FindElementPair(createdAt *ticket.Ticket) (ElementPair, bool) {
	pair, ok := r.elementMap[createdAt.Key()]
	return pair, ok
}

// CreateSubPaths returns the keys and indexes from the root to the element created at
// createdAt, starting with "$".
func (r *Root) CreateSubPaths(createdAt *ticket.Ticket) ([]string, error) {
	var subPaths []string
	for {
		pair, ok := r.elementMap[createdAt.Key()]
		if !ok {
			return nil, fmt.Errorf("path of %s: %w", createdAt.ToTestString(), ErrChildNotFound)
		}
		if pair.Parent == nil {
			break
		}
		switch parent := pair.Parent.(type) {
		case *Object:
			key, ok := parent.SubPathOf(createdAt)
			if !ok {
				return nil, fmt.Errorf("key of %s: %w", createdAt.ToTestString(), ErrChildNotFound)
			}
			subPaths = append(subPaths, key)
		case *Array:
			idx, ok := parent.IndexOf(createdAt)
			if !ok {
				return nil, fmt.Errorf("index of %s: %w", createdAt.ToTestString(), ErrChildNotFound)
			}
			subPaths = append(subPaths, strconv.Itoa(idx))
		default:
			panic(fmt.Sprintf("unknown container %T", parent))
		}
		createdAt = pair.Parent.CreatedAt()
	}
	subPaths = append(subPaths, "$")
	for i, j := 0, len(subPaths)-1; i < j; i, j = i+1, j-1 {
		subPaths[i], subPaths[j] = subPaths[j], subPaths[i]
	}
	return subPaths, nil
}

// CreatePath returns the JSON path of the element created at createdAt, like "$.a.0".
func (r *Root) CreatePath(createdAt *ticket.Ticket) (string, error) {
	subPaths, err := r.CreateSubPaths(createdAt)
	if err != nil {
		return "", err
	}
	return strings.Join(subPaths, "."), nil
}

// RegisterElement registers elem and its descendants under parent.
func (r *Root) RegisterElement(elem Element, parent Container) {
	r.elementMap[elem.CreatedAt().Key()] = ElementPair{Element: elem, Parent: parent}
	if c, ok := elem.(Container); ok {
		c.Descendants(func(child Element, parent Container) bool {
			r.elementMap[child.CreatedAt().Key()] = ElementPair{Element: child, Parent: parent}
			return false
		})
	}
}

// DeregisterElement forgets elem, its descendants and their GC pairs. Returns how many
// tombstones were forgotten.
func (r *Root) DeregisterElement(elem Element) int {
	count := 0
	deregister := func(elem Element) {
		key := elem.CreatedAt().Key()
		delete(r.elementMap, key)
		if r.gcElementSet.Contains(key) {
			r.gcElementSet.Remove(key)
		}
		count++
		if gcElem, ok := elem.(GCElement); ok {
			for _, pair := range gcElem.GCPairs() {
				if _, ok := r.gcPairMap[pair.Child.IDString()]; ok {
					delete(r.gcPairMap, pair.Child.IDString())
					count++
				}
			}
		}
	}
	deregister(elem)
	if c, ok := elem.(Container); ok {
		c.Descendants(func(child Element, parent Container) bool {
			deregister(child)
			return false
		})
	}
	return count
}

// RegisterRemovedElement marks elem as a tombstone to collect.
func (r *Root) RegisterRemovedElement(elem Element) {
	r.gcElementSet.Add(elem.CreatedAt().Key())
}

// RegisterGCPair marks a removed node inside an element as a tombstone to collect.
func (r *Root) RegisterGCPair(pair GCPair) {
	r.gcPairMap[pair.Child.IDString()] = pair
}

// ElementMapLen returns the number of registered elements.
func (r *Root) ElementMapLen() int {
	return len(r.elementMap)
}

// GCElementSetLen returns the number of removed elements, without their descendants.
func (r *Root) GCElementSetLen() int {
	return r.gcElementSet.Cardinality()
}

// GCPairMapLen returns the number of removed nodes inside elements.
func (r *Root) GCPairMapLen() int {
	return len(r.gcPairMap)
}

// GarbageLen returns the number of tombstones: removed elements with all their
// descendants, plus removed nodes inside live elements.
func (r *Root) GarbageLen() int {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, key := range r.gcElementSet.ToSlice() {
		pair, ok := r.elementMap[key]
		if !ok {
			continue
		}
		seen.Add(key)
		if c, ok := pair.Element.(Container); ok {
			c.Descendants(func(elem Element, parent Container) bool {
				seen.Add(elem.CreatedAt().Key())
				return false
			})
		}
	}
	return seen.Cardinality() + len(r.gcPairMap)
}

// GarbageCollect purges every tombstone removed at or before ticket, which every replica
// has already seen. Returns the number of purged tombstones.
func (r *Root) GarbageCollect(t *ticket.Ticket) (int, error) {
	count := 0

	keys := r.gcElementSet.ToSlice()
	sort.Strings(keys)
	for _, key := range keys {
		if !r.gcElementSet.Contains(key) {
			// Already purged with an ancestor.
			continue
		}
		pair, ok := r.elementMap[key]
		if !ok {
			r.gcElementSet.Remove(key)
			continue
		}
		removedAt := pair.Element.RemovedAt()
		if removedAt == nil || removedAt.After(t) {
			continue
		}
		if err := pair.Parent.Purge(pair.Element); err != nil {
			return count, fmt.Errorf("purge %s: %w", key, err)
		}
		count += r.DeregisterElement(pair.Element)
	}

	ids := make([]string, 0, len(r.gcPairMap))
	for id := range r.gcPairMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pair := r.gcPairMap[id]
		removedAt := pair.Child.RemovedAt()
		if removedAt == nil || removedAt.After(t) {
			continue
		}
		if err := pair.Parent.purge(pair.Child); err != nil {
			return count, fmt.Errorf("purge %s: %w", id, err)
		}
		delete(r.gcPairMap, id)
		count++
	}
	return count, nil
}

// DeepCopy copies the whole document.
func (r *Root) DeepCopy() (*Root, error) {
	object, err := r.object.DeepCopy()
	if err != nil {
		return nil, err
	}
	return NewRoot(object.(*Object)), nil
}
