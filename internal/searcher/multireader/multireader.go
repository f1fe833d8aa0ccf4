// Package multireader presents a list of sealed segments as one index with
// a single global document number space.
package multireader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// MultiReader reads several segments as one. Segment i's documents are
// numbered from offsets[i], the sum of the doc counts before it.
type MultiReader struct {
	readers []*segment.Reader
	offsets []uint32
	total   int
}

// New wraps readers in the given order. The MultiReader takes ownership of
// them and closes them on Close.
func New(readers []*segment.Reader) *MultiReader {
	m := &MultiReader{
		readers: readers,
		offsets: make([]uint32, len(readers)),
	}
	for i, r := range readers {
		m.offsets[i] = uint32(m.total)
		m.total += r.DocCount()
	}
	return m
}

// Open opens the named segments of dir concurrently. If any fails, those
// already opened are closed.
func Open(ctx context.Context, dir string, names []string) (*MultiReader, error) {
	readers := make([]*segment.Reader, len(names))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			r, err := segment.Open(dir, name)
			if err != nil {
				return fmt.Errorf("opening segment %s: %w", name, err)
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range readers {
			if r != nil {
				r.Close()
			}
		}
		return nil, err
	}
	return New(readers), nil
}

// Segments returns the underlying readers.
func (m *MultiReader) Segments() []*segment.Reader { return m.readers }

// Offsets returns each segment's first global document number.
func (m *MultiReader) Offsets() []uint32 { return append([]uint32(nil), m.offsets...) }

// SegmentAndDoc maps a global document number to the segment holding it and
// the document's number within that segment. The segment is the one with the
// rightmost offset not greater than global.
func (m *MultiReader) SegmentAndDoc(global uint32) (int, uint32) {
	if len(m.offsets) == 0 {
		return 0, global
	}
	i := max(sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] > global })-1, 0)
	return i, global - m.offsets[i]
}

func (m *MultiReader) locate(global uint32) (*segment.Reader, uint32, error) {
	if int(global) >= m.total {
		return nil, 0, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, global)
	}
	i, local := m.SegmentAndDoc(global)
	return m.readers[i], local, nil
}

// DocCountAll returns the number of documents, deleted ones included.
func (m *MultiReader) DocCountAll() int { return m.total }

// DocCount returns the number of live documents.
func (m *MultiReader) DocCount() int {
	n := m.total
	for _, r := range m.readers {
		n -= r.DeletedCount()
	}
	return n
}

// HasDeletions reports whether any segment has deleted documents.
func (m *MultiReader) HasDeletions() bool {
	for _, r := range m.readers {
		if r.DeletedCount() > 0 {
			return true
		}
	}
	return false
}

// IsDeleted reports whether the global document is deleted. Unknown
// documents are reported as not deleted.
func (m *MultiReader) IsDeleted(global uint32) bool {
	r, local, err := m.locate(global)
	if err != nil {
		return false
	}
	return r.IsDeleted(local)
}

// Delete marks the global document deleted in its segment.
func (m *MultiReader) Delete(global uint32) (bool, error) {
	r, local, err := m.locate(global)
	if err != nil {
		return false, err
	}
	return r.Delete(local)
}

// StoredFields returns the stored values of the global document.
func (m *MultiReader) StoredFields(global uint32) (map[string]string, error) {
	r, local, err := m.locate(global)
	if err != nil {
		return nil, err
	}
	return r.StoredFields(local)
}

// DocFieldLength returns the approximate length of field in the global
// document, or 0 when unknown.
func (m *MultiReader) DocFieldLength(global uint32, field string) int {
	r, local, err := m.locate(global)
	if err != nil {
		return 0
	}
	return r.DocFieldLength(local, field)
}

// FieldLength returns the total length of field over all segments.
func (m *MultiReader) FieldLength(field string) int64 {
	var n int64
	for _, r := range m.readers {
		n += r.FieldLength(field)
	}
	return n
}

// MaxFieldLength returns the longest length of field in any segment.
func (m *MultiReader) MaxFieldLength(field string) int {
	longest := 0
	for _, r := range m.readers {
		longest = max(longest, r.MaxFieldLength(field))
	}
	return longest
}

// Fields lists the indexed or scorable fields of every segment, sorted.
func (m *MultiReader) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.readers {
		for field := range r.Meta().Fields {
			if !seen[field] {
				seen[field] = true
				out = append(out, field)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Format returns the posting format of field from the first segment that
// indexes it.
func (m *MultiReader) Format(field string) (*codec.Format, error) {
	for _, r := range m.readers {
		if f, err := r.Format(field); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownField, field)
}

// VectorFormat returns the term vector format of field from the first
// segment that keeps vectors for it.
func (m *MultiReader) VectorFormat(field string) (*codec.Format, error) {
	for _, r := range m.readers {
		if f, err := r.VectorFormat(field); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: field %s keeps no vectors", apperrors.ErrUnknownField, field)
}

// HasVector reports whether the global document has a term vector for
// field.
func (m *MultiReader) HasVector(global uint32, field string) bool {
	r, local, err := m.locate(global)
	if err != nil {
		return false
	}
	return r.HasVector(local, field)
}

// Vector iterates the term vector of field in the global document. It
// fails with ErrTermNotFound when the document has no such vector.
func (m *MultiReader) Vector(global uint32, field string) (posting.Iterator[segment.VectorEntry], error) {
	r, local, err := m.locate(global)
	if err != nil {
		return nil, err
	}
	return r.Vector(local, field)
}

// Contains reports whether any segment has postings for key.
func (m *MultiReader) Contains(key posting.TermKey) bool {
	for _, r := range m.readers {
		if r.Contains(key) {
			return true
		}
	}
	return false
}

// DocFrequency returns the number of documents containing key.
func (m *MultiReader) DocFrequency(key posting.TermKey) int {
	n := 0
	for _, r := range m.readers {
		if info, err := r.TermInfo(key); err == nil {
			n += info.DocFreq
		}
	}
	return n
}

// Frequency returns the summed weight of key over all segments.
func (m *MultiReader) Frequency(key posting.TermKey) float64 {
	var n float64
	for _, r := range m.readers {
		if info, err := r.TermInfo(key); err == nil {
			n += info.Weight
		}
	}
	return n
}

// Terms iterates the statistics of every term in key order.
func (m *MultiReader) Terms() posting.Iterator[merger.TermStats] {
	inputs := make([]posting.Iterator[merger.TermStats], len(m.readers))
	for i, r := range m.readers {
		inputs[i] = statsOf(r.Terms())
	}
	return merger.MergeTerms(inputs...)
}

// IterFrom iterates term statistics from the first key at or after key.
func (m *MultiReader) IterFrom(key posting.TermKey) posting.Iterator[merger.TermStats] {
	inputs := make([]posting.Iterator[merger.TermStats], len(m.readers))
	for i, r := range m.readers {
		inputs[i] = statsOf(r.IterFrom(key))
	}
	return merger.MergeTerms(inputs...)
}

// IterPrefix iterates the terms of field starting with prefix.
func (m *MultiReader) IterPrefix(field, prefix string) posting.Iterator[merger.TermStats] {
	return &prefixIterator{
		Iterator: m.IterFrom(posting.TermKey{Field: field, Term: prefix}),
		field:    field,
		prefix:   prefix,
	}
}

// ExpandPrefix lists the terms of field starting with prefix.
func (m *MultiReader) ExpandPrefix(field, prefix string) ([]string, error) {
	stats, err := posting.Collect(m.IterPrefix(field, prefix))
	if err != nil {
		return nil, err
	}
	terms := make([]string, len(stats))
	for i, s := range stats {
		terms[i] = s.Key.Term
	}
	return terms, nil
}

// Lexicon lists every term of field.
func (m *MultiReader) Lexicon(field string) ([]string, error) {
	return m.ExpandPrefix(field, "")
}

// MostFrequentTerms returns the limit terms of field starting with prefix
// that have the highest summed weight.
func (m *MultiReader) MostFrequentTerms(field, prefix string, limit int) ([]merger.TermStats, error) {
	return merger.TopTerms(m.IterPrefix(field, prefix), limit)
}

// Postings returns a cursor over key's postings in every segment, with
// document numbers translated to global ones.
func (m *MultiReader) Postings(key posting.TermKey) (*MultiCursor, error) {
	mc := &MultiCursor{}
	for i, r := range m.readers {
		if !r.Contains(key) {
			continue
		}
		c, err := r.Postings(key)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", r.Name(), err)
		}
		mc.cursors = append(mc.cursors, c)
		mc.offsets = append(mc.offsets, m.offsets[i])
	}
	if len(mc.cursors) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTermNotFound, key)
	}
	return mc, nil
}

// Close closes every segment.
func (m *MultiReader) Close() error {
	var errs []error
	for _, r := range m.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

type statsIterator struct {
	posting.Iterator[segment.TermEntry]
}

func statsOf(it posting.Iterator[segment.TermEntry]) posting.Iterator[merger.TermStats] {
	return statsIterator{it}
}

func (s statsIterator) Item() merger.TermStats {
	e := s.Iterator.Item()
	return merger.TermStats{Key: e.Key, DocFreq: e.Info.DocFreq, CollFreq: e.Info.Weight}
}

type prefixIterator struct {
	posting.Iterator[merger.TermStats]
	field  string
	prefix string
	done   bool
}

func (p *prefixIterator) Next() bool {
	if p.done || !p.Iterator.Next() {
		return false
	}
	k := p.Iterator.Item().Key
	if k.Field != p.field || !strings.HasPrefix(k.Term, p.prefix) {
		p.done = true
		return false
	}
	return true
}
