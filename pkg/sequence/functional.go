package sequence

import (
	"iter"
)

// Iterator is a generic, immutable, chainable iterator for any type T.
// Every combinator returns a new Iterator; ranging over one never consumes
// the source, so an Iterator can be walked any number of times.
type Iterator[T any] struct {
	seq iter.Seq[T]
}

// From creates a new Iterator from a slice of T.
func From[T any](data []T) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for _, v := range data {
				if !yield(v) {
					return
				}
			}
		},
	}
}

// FromSeq wraps a standard iterator. The resulting Iterator is restartable
// only if seq is.
func FromSeq[T any](seq iter.Seq[T]) *Iterator[T] {
	return &Iterator[T]{seq: seq}
}

// Empty returns an Iterator that yields nothing.
func Empty[T any]() *Iterator[T] {
	return &Iterator[T]{seq: func(func(T) bool) {}}
}

// Seq returns the underlying sequence function for the iterator.
func (i *Iterator[T]) Seq() iter.Seq[T] {
	return i.seq
}

// Pull pulls the next element from the iterator and returns it along with a boolean indicating whether the element was valid.
func (i *Iterator[T]) Pull() (next func() (T, bool), stop func()) {
	return iter.Pull(i.Seq())
}

// Collect exhausts the iterator and returns a slice of all elements.
func (i *Iterator[T]) Collect() []T {
	var out []T
	for v := range i.seq {
		out = append(out, v)
	}
	return out
}

// Filter returns a new Iterator containing only elements that satisfy the predicate.
func (i *Iterator[T]) Filter(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for v := range i.seq {
				if pred(v) && !yield(v) {
					return
				}
			}
		},
	}
}

// StopWith yields elements up to and including the first one matching pred.
func (i *Iterator[T]) StopWith(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for v := range i.seq {
				if !yield(v) || pred(v) {
					return
				}
			}
		},
	}
}

// StopBefore yields elements up to, but excluding, the first one matching pred.
func (i *Iterator[T]) StopBefore(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for v := range i.seq {
				if pred(v) || !yield(v) {
					return
				}
			}
		},
	}
}

// StartAfter skips elements up to and including the first one matching pred.
// If nothing matches, the result is empty.
func (i *Iterator[T]) StartAfter(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			started := false
			for v := range i.seq {
				if started {
					if !yield(v) {
						return
					}
					continue
				}
				started = pred(v)
			}
		},
	}
}

// Find returns the first element matching the predicate, or false if not found.
func (i *Iterator[T]) Find(pred func(T) bool) (T, bool) {
	for v := range i.seq {
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Any returns true if any element matches the predicate.
func (i *Iterator[T]) Any(pred func(T) bool) bool {
	_, found := i.Find(pred)
	return found
}

// First returns the first element of the iterator.
func (i *Iterator[T]) First() (T, bool) {
	return i.Find(func(T) bool { return true })
}

// Last returns the last element of the iterator.
func (i *Iterator[T]) Last() (T, bool) {
	var (
		last  T
		found bool
	)
	for v := range i.seq {
		last, found = v, true
	}
	return last, found
}

// Count returns the number of elements.
func (i *Iterator[T]) Count() int {
	n := 0
	for range i.seq {
		n++
	}
	return n
}

// Reverse materializes the iterator and yields it backwards.
func (i *Iterator[T]) Reverse() *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			data := i.Collect()
			for idx := len(data) - 1; idx >= 0; idx-- {
				if !yield(data[idx]) {
					return
				}
			}
		},
	}
}

// Chain concatenates iterators.
func Chain[T any](iters ...*Iterator[T]) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for _, it := range iters {
				for v := range it.seq {
					if !yield(v) {
						return
					}
				}
			}
		},
	}
}

// Map lazily converts every element.
func Map[T any, R any](it *Iterator[T], fn func(T) R) *Iterator[R] {
	return &Iterator[R]{
		seq: func(yield func(R) bool) {
			for v := range it.seq {
				if !yield(fn(v)) {
					return
				}
			}
		},
	}
}

// ToArray converts each element using the callback and returns a slice.
func ToArray[T any, S any](it *Iterator[T], callback func(T) S) []S {
	return Map(it, callback).Collect()
}
