// Package merger combines per-segment term statistics into one sorted view.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
)

// TermStats is a term's statistics within one segment or, after merging,
// across segments. CollFreq is the summed posting weight.
type TermStats struct {
	Key      posting.TermKey
	DocFreq  int
	CollFreq float64
}

func compareStats(a, b TermStats) int { return a.Key.Compare(b.Key) }

// MergeTerms merges sorted term iterators, emitting each key once with the
// DocFreq and CollFreq of all inputs carrying it summed.
func MergeTerms(inputs ...posting.Iterator[TermStats]) posting.Iterator[TermStats] {
	return &aggregator{src: posting.Merge(compareStats, inputs...)}
}

type aggregator struct {
	src     posting.Iterator[TermStats]
	pending TermStats
	has     bool
	current TermStats
	err     error
}

func (a *aggregator) Next() bool {
	if a.err != nil {
		return false
	}
	if !a.has {
		if !a.src.Next() {
			a.err = a.src.Err()
			return false
		}
		a.pending = a.src.Item()
	}
	a.current = a.pending
	a.has = false
	for a.src.Next() {
		next := a.src.Item()
		if next.Key != a.current.Key {
			a.pending = next
			a.has = true
			return true
		}
		a.current.DocFreq += next.DocFreq
		a.current.CollFreq += next.CollFreq
	}
	if err := a.src.Err(); err != nil {
		a.err = err
		return false
	}
	return true
}

func (a *aggregator) Item() TermStats { return a.current }

func (a *aggregator) Err() error { return a.err }

func (a *aggregator) Close() error { return a.src.Close() }

// TopTerms drains it and returns the limit terms with the highest CollFreq,
// highest first. Ties go to the smaller key.
func TopTerms(it posting.Iterator[TermStats], limit int) ([]TermStats, error) {
	defer it.Close()
	if limit <= 0 {
		limit = 10
	}
	h := &statsHeap{}
	heap.Init(h)
	for it.Next() {
		heap.Push(h, it.Item())
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	result := make([]TermStats, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(TermStats)
	}
	return result, nil
}

type statsHeap []TermStats

func (h statsHeap) Len() int { return len(h) }

func (h statsHeap) Less(i, j int) bool {
	if h[i].CollFreq != h[j].CollFreq {
		return h[i].CollFreq < h[j].CollFreq
	}
	return h[i].Key.Compare(h[j].Key) > 0
}

func (h statsHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *statsHeap) Push(x interface{}) {
	*h = append(*h, x.(TermStats))
}

func (h *statsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
