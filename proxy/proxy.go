/*
Package proxy gives typed handles to the elements of a document during an update.

Handles read from the working copy of the document, and each mutating call creates one
operation, applies it to the copy and records it in the change being built:

	doc.Update(func(root *proxy.Object, p *presence.Presence) error {
		todos, err := root.SetNewArray("todos")
		if err != nil {
			return err
		}
		return todos.Add("buy milk", "walk the dog")
	}, "add todos")

Invalid calls, such as keys with dots or reversed ranges, fail before changing anything.
*/
package proxy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/ticket"
)

var (
	// ErrInvalidKey is returned for object keys that can't be part of a path.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidRange is returned for ranges outside the element or with from > to.
	ErrInvalidRange = errors.New("invalid range")
	// ErrInvalidContent is returned for tree contents that can't be inserted.
	ErrInvalidContent = errors.New("invalid content")
	// ErrReadOnly is returned when changing a handle obtained outside an update.
	ErrReadOnly = errors.New("read-only handle")
)

// toElement converts a Go value into a new element. Maps and slices become objects and
// arrays, with their members created at the tickets following createdAt.
func toElement(ctx *change.Context, value interface{}, createdAt *ticket.Ticket) (crdt.Element, error) {
	switch v := value.(type) {
	case crdt.Element:
		return nil, fmt.Errorf("element %T: %w", v, crdt.ErrUnsupportedType)
	case map[string]interface{}:
		obj := crdt.NewObject(crdt.NewElementRHT(), createdAt)
		keys := make([]string, 0, len(v))
		for key := range v {
			if err := validateKey(key); err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child, err := toElement(ctx, v[key], ctx.IssueTimeTicket())
			if err != nil {
				return nil, err
			}
			obj.Set(key, child, child.CreatedAt())
		}
		return obj, nil
	case []interface{}:
		arr := crdt.NewArray(crdt.NewRGATreeList(), createdAt)
		for _, item := range v {
			child, err := toElement(ctx, item, ctx.IssueTimeTicket())
			if err != nil {
				return nil, err
			}
			if err := arr.Add(child); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case []string:
		items := make([]interface{}, len(v))
		for i, s := range v {
			items[i] = s
		}
		return toElement(ctx, items, createdAt)
	case time.Time, []byte, nil, bool, int, int32, int64, float32, float64, string:
		return crdt.NewPrimitive(v, createdAt)
	}
	return nil, fmt.Errorf("value of %T: %w", value, crdt.ErrUnsupportedType)
}

func checkWritable(ctx *change.Context) error {
	if ctx == nil {
		return ErrReadOnly
	}
	return nil
}

func validateKey(key string) error {
	for _, ch := range key {
		if ch == '.' {
			return fmt.Errorf("%q contains '.': %w", key, ErrInvalidKey)
		}
	}
	return nil
}

func validateRange(from, to, size int) error {
	if from < 0 || from > to || to > size {
		return fmt.Errorf("[%d, %d) of %d: %w", from, to, size, ErrInvalidRange)
	}
	return nil
}

// wrap returns the handle of an element, or the element itself for primitives.
func wrap(ctx *change.Context, elem crdt.Element) interface{} {
	switch e := elem.(type) {
	case *crdt.Object:
		return NewObject(ctx, e)
	case *crdt.Array:
		return NewArray(ctx, e)
	case *crdt.Text:
		return NewText(ctx, e)
	case *crdt.Counter:
		return NewCounter(ctx, e)
	case *crdt.Tree:
		return NewTree(ctx, e)
	}
	return elem
}

func errorf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
