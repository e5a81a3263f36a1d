package analyzer

import "slices"

// ValueStore is the arena backing all branch node event views of one
// recomputation pass. Leaf nodes own their event vectors; branch nodes only
// hold a range into this store, materialized fresh each pass. The store is
// reset at the start of every pass, which invalidates all previous ranges at
// once instead of risking dangling views after tree restructuring.
type ValueStore[T any] struct {
	values []T
}

func (s *ValueStore[T]) Reset() {
	s.values = s.values[:0]
}

// TrackGroup invokes tracked, which is expected to append every descendant
// leaf's events via AppendLeaf, and returns the branch view covering exactly
// those events.
func (s *ValueStore[T]) TrackGroup(tracked func(store *ValueStore[T])) Values[T] {
	start := len(s.values)
	tracked(s)

	return Values[T]{start: start, end: len(s.values)}
}

func (s *ValueStore[T]) AppendLeaf(values []T) {
	s.values = append(s.values, values...)
}

// Get resolves either Values variant to its backing slice. Branch views are
// only valid for the pass that produced them.
func (s *ValueStore[T]) Get(values *Values[T]) []T {
	if values.isLeaf {
		return values.leaf
	}

	return s.values[values.start:values.end]
}

// Values is the event view of one grouping tree node: either an owned leaf
// vector or a contiguous range into the shared store.
type Values[T any] struct {
	leaf       []T
	start, end int
	isLeaf     bool
}

func newLeaf[T any]() Values[T] {
	return Values[T]{isLeaf: true}
}

func (v *Values[T]) IsLeaf() bool {
	return v.isLeaf
}

// Push appends to a leaf. Pushing to a branch view is a programming error.
func (v *Values[T]) Push(value T) {
	if !v.isLeaf {
		panic("cannot push a value onto a branch view")
	}

	v.leaf = append(v.leaf, value)
}

// clone decouples a leaf's owned vector from the original. Branch ranges
// are plain values and copy as-is.
func (v Values[T]) clone() Values[T] {
	if v.isLeaf {
		v.leaf = slices.Clone(v.leaf)
	}

	return v
}

// Leaf returns the owned event vector of a leaf.
func (v *Values[T]) Leaf() []T {
	if !v.isLeaf {
		panic("values is not a leaf")
	}

	return v.leaf
}

type (
	HitStore      = ValueStore[Hit]
	Hits          = Values[Hit]
	HealTickStore = ValueStore[HealTick]
	HealTicks     = Values[HealTick]
)
