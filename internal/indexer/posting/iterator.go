package posting

import "errors"

// Iterator is a pull-based lazy sequence. Next advances to the following
// element and reports whether one is available; Item returns it. When Next
// returns false, Err distinguishes exhaustion (nil) from failure. Close
// releases any resources and may be called at any time, more than once.
type Iterator[T any] interface {
	Next() bool
	Item() T
	Err() error
	Close() error
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

// FromSlice returns an Iterator over items.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items, pos: -1}
}

func (s *sliceIterator[T]) Next() bool {
	if s.pos+1 >= len(s.items) {
		s.pos = len(s.items)
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator[T]) Item() T { return s.items[s.pos] }

func (s *sliceIterator[T]) Err() error { return nil }

func (s *sliceIterator[T]) Close() error {
	s.items = nil
	s.pos = 0
	return nil
}

// Empty returns an Iterator with no elements.
func Empty[T any]() Iterator[T] {
	return FromSlice[T](nil)
}

// Collect drains it into a slice and closes it.
func Collect[T any](it Iterator[T]) ([]T, error) {
	var out []T
	for it.Next() {
		out = append(out, it.Item())
	}
	err := it.Err()
	return out, errors.Join(err, it.Close())
}

// OnClose wraps it so fn runs once after it is closed. fn's error is joined
// with the iterator's own Close error.
func OnClose[T any](it Iterator[T], fn func() error) Iterator[T] {
	return &closeHook[T]{Iterator: it, fn: fn}
}

type closeHook[T any] struct {
	Iterator[T]
	fn   func() error
	done bool
}

func (c *closeHook[T]) Close() error {
	err := c.Iterator.Close()
	if c.done {
		return err
	}
	c.done = true
	return errors.Join(err, c.fn())
}
