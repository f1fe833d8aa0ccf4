// Package executor answers read requests against the sealed segments of an
// index directory. It holds a MultiReader snapshot that Refresh replaces
// when new segments appear.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/multireader"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
)

// TermView is one term's statistics as returned to clients.
type TermView struct {
	Field    string  `json:"field"`
	Term     string  `json:"term"`
	DocFreq  int     `json:"doc_freq"`
	CollFreq float64 `json:"coll_freq"`
}

// Views converts merged term statistics for output.
func Views(stats []merger.TermStats) []TermView {
	out := make([]TermView, len(stats))
	for i, s := range stats {
		out[i] = TermView{Field: s.Key.Field, Term: s.Key.Term, DocFreq: s.DocFreq, CollFreq: s.CollFreq}
	}
	return out
}

// PostingView is one posting with its decoded metrics.
type PostingView struct {
	Doc     uint32         `json:"doc"`
	Weight  float64        `json:"weight"`
	Length  int            `json:"length"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// PostingsResult is the response of Postings.
type PostingsResult struct {
	Field    string        `json:"field"`
	Term     string        `json:"term"`
	Format   string        `json:"format"`
	DocFreq  int           `json:"doc_freq"`
	Postings []PostingView `json:"postings"`
}

// DocumentResult is the response of Document.
type DocumentResult struct {
	Doc     uint32            `json:"doc"`
	Deleted bool              `json:"deleted"`
	Fields  map[string]string `json:"fields"`
	Lengths map[string]int    `json:"lengths,omitempty"`
}

// FieldStats summarizes one field over the whole index.
type FieldStats struct {
	TotalLength int64 `json:"total_length"`
	MaxLength   int   `json:"max_length"`
}

// IndexStats summarizes the current snapshot.
type IndexStats struct {
	Generation  string                `json:"generation"`
	Segments    int                   `json:"segments"`
	DocCount    int                   `json:"doc_count"`
	DocCountAll int                   `json:"doc_count_all"`
	Fields      map[string]FieldStats `json:"fields"`
}

// Executor serves reads from the segments in dir.
type Executor struct {
	dir     string
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	reader *multireader.MultiReader
	names  []string
}

// Open opens every sealed segment in dir.
func Open(ctx context.Context, dir string, m *metrics.Metrics) (*Executor, error) {
	e := &Executor{
		dir:     dir,
		metrics: m,
		logger:  logger.WithComponent("executor"),
		reader:  multireader.New(nil),
	}
	if _, err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Refresh opens segments sealed since the last call and rereads the
// deletion sets of the others. It reports whether the segment list changed.
// Segment readers are never closed before Close, so snapshots handed out
// earlier stay usable.
func (e *Executor) Refresh(ctx context.Context) (bool, error) {
	names, err := segment.List(e.dir)
	if err != nil {
		return false, fmt.Errorf("listing segments: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	open := make(map[string]*segment.Reader, len(e.names))
	for _, r := range e.reader.Segments() {
		open[r.Name()] = r
	}
	var added []string
	for _, name := range names {
		r, ok := open[name]
		if !ok {
			added = append(added, name)
			continue
		}
		if err := r.ReloadDeletions(); err != nil {
			e.logger.Warn("reloading deletions failed", "segment", name, "error", err)
		}
	}
	if len(added) == 0 && slices.Equal(names, e.names) {
		return false, nil
	}

	fresh, err := multireader.Open(ctx, e.dir, added)
	if err != nil {
		return false, err
	}
	for _, r := range fresh.Segments() {
		open[r.Name()] = r
	}
	readers := make([]*segment.Reader, 0, len(names))
	for _, name := range names {
		readers = append(readers, open[name])
	}
	e.reader = multireader.New(readers)
	e.names = names
	for _, r := range fresh.Segments() {
		e.metrics.SegmentOpened(r.Name(), r.DocCount(), len(readers))
	}
	e.logger.Info("index refreshed",
		"segments", len(readers),
		"added", len(added),
		"docs", e.reader.DocCountAll(),
	)
	return true, nil
}

// Reader returns the current snapshot.
func (e *Executor) Reader() *multireader.MultiReader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reader
}

// Generation names the current snapshot: the newest segment, or "empty".
func (e *Executor) Generation() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.names) == 0 {
		return "empty"
	}
	return fmt.Sprintf("%s+%d", e.names[len(e.names)-1], len(e.names))
}

// Terms lists up to limit terms of field starting with prefix, in order.
func (e *Executor) Terms(ctx context.Context, field, prefix string, limit int) ([]merger.TermStats, error) {
	it := e.Reader().IterPrefix(field, prefix)
	defer it.Close()
	var out []merger.TermStats
	for (limit <= 0 || len(out) < limit) && it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("listing terms of %s: %w", field, err)
	}
	return out, nil
}

// TopTerms returns the limit terms of field with the highest summed weight.
func (e *Executor) TopTerms(_ context.Context, field, prefix string, limit int) ([]merger.TermStats, error) {
	return e.Reader().MostFrequentTerms(field, prefix, limit)
}

// Postings reads up to limit postings of field:term starting at the first
// global document at or after from. Deleted documents are skipped.
func (e *Executor) Postings(ctx context.Context, field, term string, from uint32, limit int) (*PostingsResult, error) {
	r := e.Reader()
	key := posting.TermKey{Field: field, Term: term}
	c, err := r.Postings(key)
	if err != nil {
		return nil, err
	}
	format, err := r.Format(field)
	if err != nil {
		return nil, err
	}
	res := &PostingsResult{
		Field:    field,
		Term:     term,
		Format:   format.Kind().String(),
		DocFreq:  r.DocFrequency(key),
		Postings: []PostingView{},
	}
	ok := c.Next()
	if ok && from > 0 && c.ID() < from {
		ok = c.SkipTo(from)
	}
	for ; ok && (limit <= 0 || len(res.Postings) < limit); ok = c.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.IsDeleted(c.ID()) {
			continue
		}
		view := PostingView{Doc: c.ID(), Weight: c.Weight(), Length: r.DocFieldLength(c.ID(), field)}
		data, err := c.Data()
		if err != nil {
			return nil, fmt.Errorf("decoding %s posting of doc %d: %w", key, c.ID(), err)
		}
		for _, metric := range c.Format().Metrics() {
			v, err := c.Format().Extract(data, metric)
			if err != nil {
				return nil, err
			}
			if view.Metrics == nil {
				view.Metrics = make(map[string]any)
			}
			view.Metrics[string(metric)] = v
		}
		res.Postings = append(res.Postings, view)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("reading postings of %s: %w", key, err)
	}
	return res, nil
}

// Document returns the stored fields and field lengths of a global
// document.
func (e *Executor) Document(_ context.Context, doc uint32) (*DocumentResult, error) {
	r := e.Reader()
	fields, err := r.StoredFields(doc)
	if err != nil {
		return nil, err
	}
	res := &DocumentResult{Doc: doc, Deleted: r.IsDeleted(doc), Fields: fields}
	for _, field := range r.Fields() {
		if n := r.DocFieldLength(doc, field); n > 0 {
			if res.Lengths == nil {
				res.Lengths = make(map[string]int)
			}
			res.Lengths[field] = n
		}
	}
	return res, nil
}

// Stats summarizes the current snapshot.
func (e *Executor) Stats() IndexStats {
	r := e.Reader()
	stats := IndexStats{
		Generation:  e.Generation(),
		Segments:    len(r.Segments()),
		DocCount:    r.DocCount(),
		DocCountAll: r.DocCountAll(),
		Fields:      make(map[string]FieldStats),
	}
	for _, field := range r.Fields() {
		stats.Fields[field] = FieldStats{TotalLength: r.FieldLength(field), MaxLength: r.MaxFieldLength(field)}
	}
	return stats
}

// Close closes every open segment.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.reader.Close()
	e.reader = multireader.New(nil)
	e.names = nil
	return err
}
