package posting

import (
	"container/heap"
	"errors"
)

// Merge lazily merge-sorts already sorted inputs into one sorted sequence.
// Equal heads come out in input order. Inputs are pulled one element at a
// time, so nothing is read ahead of demand beyond each input's current head.
// Closing the result closes every input.
func Merge[T any](cmp func(a, b T) int, inputs ...Iterator[T]) Iterator[T] {
	return &mergeIterator[T]{
		heads:  headHeap[T]{cmp: cmp},
		inputs: inputs,
	}
}

// MergePostings merges sorted posting iterators using Compare.
func MergePostings(inputs ...Iterator[Posting]) Iterator[Posting] {
	return Merge(Compare, inputs...)
}

type head[T any] struct {
	item  T
	src   Iterator[T]
	order int
}

type headHeap[T any] struct {
	items []head[T]
	cmp   func(a, b T) int
}

func (h headHeap[T]) Len() int { return len(h.items) }

func (h headHeap[T]) Less(i, j int) bool {
	if c := h.cmp(h.items[i].item, h.items[j].item); c != 0 {
		return c < 0
	}
	return h.items[i].order < h.items[j].order
}

func (h headHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *headHeap[T]) Push(x interface{}) {
	h.items = append(h.items, x.(head[T]))
}

func (h *headHeap[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

type mergeIterator[T any] struct {
	heads   headHeap[T]
	inputs  []Iterator[T]
	started bool
	// last is the source of the previously yielded element; it is advanced
	// lazily on the following Next call.
	last    *head[T]
	single  Iterator[T]
	current T
	err     error
	closed  bool
}

func (m *mergeIterator[T]) init() bool {
	m.started = true
	for i, in := range m.inputs {
		if in.Next() {
			m.heads.items = append(m.heads.items, head[T]{item: in.Item(), src: in, order: i})
			continue
		}
		if err := in.Err(); err != nil {
			m.err = err
			return false
		}
	}
	heap.Init(&m.heads)
	return true
}

func (m *mergeIterator[T]) Next() bool {
	if m.err != nil || m.closed {
		return false
	}
	if !m.started && !m.init() {
		return false
	}
	if m.single != nil {
		return m.passThrough()
	}
	if m.last != nil {
		src := m.last.src
		order := m.last.order
		m.last = nil
		if src.Next() {
			m.heads.items[0] = head[T]{item: src.Item(), src: src, order: order}
			heap.Fix(&m.heads, 0)
		} else {
			if err := src.Err(); err != nil {
				m.err = err
				return false
			}
			heap.Pop(&m.heads)
		}
	}
	switch m.heads.Len() {
	case 0:
		return false
	case 1:
		// Only one source left: hand it over and skip the heap.
		h := m.heads.items[0]
		m.heads.items = nil
		m.single = h.src
		m.current = h.item
		return true
	}
	h := m.heads.items[0]
	m.current = h.item
	m.last = &h
	return true
}

func (m *mergeIterator[T]) passThrough() bool {
	if m.single.Next() {
		m.current = m.single.Item()
		return true
	}
	m.err = m.single.Err()
	return false
}

func (m *mergeIterator[T]) Item() T { return m.current }

func (m *mergeIterator[T]) Err() error { return m.err }

func (m *mergeIterator[T]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for _, in := range m.inputs {
		errs = append(errs, in.Close())
	}
	return errors.Join(errs...)
}
