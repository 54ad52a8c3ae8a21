// Package collection provides the ordered, observable record sequence a list
// view renders.
//
// The loader is the only writer. Views read items and subscribe to changes; a
// Replaced change touches a single position, a Reset change replaces the whole
// sequence. Like the rest of a view's state, a Collection is confined to the
// view's dispatch loop.
package collection

import (
	"reflect"
	"slices"
)

// ChangeKind tells observers how the collection changed.
type ChangeKind int

const (
	// Replaced means the item at Index was overwritten in place.
	Replaced ChangeKind = iota + 1

	// Reset means every item was removed and the new items appended.
	Reset
)

func (k ChangeKind) String() string {
	switch k {
	case Replaced:
		return "replaced"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change describes one mutation.
type Change struct {
	Kind  ChangeKind
	Index int // position for Replaced, -1 for Reset
}

// SyncResult summarizes a Sync call.
type SyncResult struct {
	// Replaced counts positions overwritten in place.
	Replaced int

	// Reset is true when the collection was cleared and refilled.
	Reset bool

	// Inconsistent is true when an in-place update found a length mismatch
	// and fell back to a full replace.
	Inconsistent bool
}

// Collection is an ordered sequence of T with change notifications.
type Collection[T any] struct {
	items     []T
	seq       int
	observers []observer
}

type observer struct {
	id int
	fn func(Change)
}

// New creates an empty collection.
func New[T any]() *Collection[T] {
	return &Collection[T]{}
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// At returns the item at position i.
func (c *Collection[T]) At(i int) T {
	return c.items[i]
}

// Items returns a copy of the items.
func (c *Collection[T]) Items() []T {
	return slices.Clone(c.items)
}

// Subscribe registers fn for changes. The returned func removes it.
func (c *Collection[T]) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.seq++
	id := c.seq
	c.observers = append(c.observers, observer{id: id, fn: fn})

	return func() {
		c.observers = slices.DeleteFunc(c.observers, func(o observer) bool { return o.id == id })
	}
}

// Clear removes every item.
func (c *Collection[T]) Clear() {
	if len(c.items) == 0 {
		return
	}
	c.reset(nil)
}

// Sync makes the collection equal to items using the diff-or-replace rule.
//
// When the lengths match, only positions where equal reports a difference are
// overwritten, so unchanged items keep their identity. Otherwise the collection
// is cleared and refilled in order. A nil equal compares with reflect.DeepEqual.
func (c *Collection[T]) Sync(items []T, equal func(a, b T) bool) SyncResult {
	if equal == nil {
		equal = deepEqual[T]
	}

	if len(c.items) != len(items) {
		c.reset(items)
		return SyncResult{Reset: true}
	}

	var res SyncResult
	for i := range items {
		if i >= len(c.items) {
			// Never partially write: start over with a full replace.
			c.reset(items)
			return SyncResult{Reset: true, Inconsistent: true}
		}
		if equal(c.items[i], items[i]) {
			continue
		}
		c.items[i] = items[i]
		res.Replaced++
		c.notify(Change{Kind: Replaced, Index: i})
	}
	return res
}

func (c *Collection[T]) reset(items []T) {
	c.items = slices.Clone(items)
	c.notify(Change{Kind: Reset, Index: -1})
}

func (c *Collection[T]) notify(ch Change) {
	for _, o := range slices.Clone(c.observers) {
		o.fn(ch)
	}
}

func deepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
