package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/pool"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/multireader"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/tracing"
)

// Document is one document to index: field values keyed by field name and
// an optional document boost.
type Document struct {
	Fields map[string]string `json:"fields"`
	Boost  float64           `json:"boost,omitempty"`
}

// Engine builds segments in DataDir. Documents are buffered in one pool at
// a time; Flush drains it into a new sealed segment.
type Engine struct {
	ctx     context.Context
	cfg     config.IndexerConfig
	schema  *schema.Schema
	db      *sql.DB
	writer  *segment.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger

	// openSegment opens freshly written segments.
	openSegment func(dir, name string) (*segment.Reader, error)

	mu      sync.Mutex
	pool    pool.Pool
	stored  []map[string]string
	vectors []map[string][]segment.VectorEntry
	pending int
	// doomed holds pending document numbers to delete once sealed.
	doomed []uint32

	readerMu sync.RWMutex
	readers  []*segment.Reader
	sealed   uint32
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics instruments the engine, its pools and its segment writer.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDB supplies the database used by the postgres pool kind.
func WithDB(db *sql.DB) Option {
	return func(e *Engine) { e.db = db }
}

// NewEngine opens the segments already in cfg.DataDir and prepares an empty
// pool. ctx bounds the database work of SQL-backed pools.
func NewEngine(ctx context.Context, cfg config.IndexerConfig, s *schema.Schema, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		ctx:         ctx,
		cfg:         cfg,
		schema:      s,
		logger:      logger.WithComponent("indexer"),
		openSegment: segment.Open,
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.PoolKind == config.PoolPostgres && e.db == nil {
		return nil, fmt.Errorf("%w: postgres pool needs a database", apperrors.ErrFieldConfiguration)
	}
	writerOpts := []segment.WriterOption{
		segment.WithInlineLimit(cfg.InlineLimit),
		segment.WithMetrics(e.metrics),
	}
	if cfg.BlockSize > 0 {
		writerOpts = append(writerOpts, segment.WithBlockSize(cfg.BlockSize))
	}
	e.writer = segment.NewWriter(cfg.DataDir, writerOpts...)
	if err := e.loadExistingSegments(); err != nil {
		e.closeReaders()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	p, err := e.newPool()
	if err != nil {
		e.closeReaders()
		return nil, err
	}
	e.pool = p
	return e, nil
}

func (e *Engine) newPool() (pool.Pool, error) {
	opts := pool.Options{
		Limit:   e.cfg.PoolLimitBytes(),
		TempDir: e.cfg.TempDir,
		Metrics: e.metrics,
	}
	switch e.cfg.PoolKind {
	case config.PoolMemory:
		return pool.NewMemPool(e.schema, e.metrics), nil
	case config.PoolSQLite:
		return pool.NewSQLitePool(e.ctx, e.schema, opts)
	case config.PoolPostgres:
		return pool.NewPostgresPool(e.ctx, e.schema, e.db, opts)
	default:
		return pool.NewTempfilePool(e.schema, opts), nil
	}
}

// IndexDocument buffers doc and returns the global document number it will
// have once flushed. Fields missing from the schema are rejected before
// anything is buffered.
func (e *Engine) IndexDocument(doc Document) (uint32, error) {
	for name := range doc.Fields {
		if !e.schema.Has(name) {
			return 0, fmt.Errorf("%w: %s", apperrors.ErrUnknownField, name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	docNum := uint32(e.pending)
	global := e.sealedDocs() + docNum
	stored := make(map[string]string)
	var vectors map[string][]segment.VectorEntry
	var indexErr error
	ctx := codec.Context{DocBoost: doc.Boost}
	for _, name := range e.schema.Names() {
		value, ok := doc.Fields[name]
		if !ok {
			continue
		}
		ft, _ := e.schema.Field(name)
		if ft.Indexed() {
			if _, err := e.pool.AddContent(docNum, name, value, ctx); err != nil {
				indexErr = err
				break
			}
		}
		if ft.Vector != nil {
			entries, err := ft.Vector.Index(value, ctx)
			if err != nil {
				indexErr = fmt.Errorf("vector of %s: %w", name, err)
				break
			}
			if vectors == nil {
				vectors = make(map[string][]segment.VectorEntry)
			}
			vectors[name] = segment.VectorsFromIndexed(entries)
		}
		if ft.Stored {
			stored[name] = value
		}
	}
	// The number is consumed either way. A document that failed halfway is
	// deleted as soon as it is sealed so its partial postings never match.
	e.pending++
	if indexErr != nil {
		e.stored = append(e.stored, nil)
		e.vectors = append(e.vectors, nil)
		e.doomed = append(e.doomed, docNum)
		return 0, fmt.Errorf("indexing document %d: %w", global, indexErr)
	}
	e.stored = append(e.stored, stored)
	e.vectors = append(e.vectors, vectors)
	e.metrics.DocIndexed()

	if limit := e.cfg.MaxDocsPerSegment; limit > 0 && e.pending >= limit {
		e.logger.Info("pool reached max documents, flushing",
			"docs", e.pending,
			"threshold", limit,
		)
		if err := e.flushLocked(); err != nil {
			return global, fmt.Errorf("flushing pool: %w", err)
		}
	}
	return global, nil
}

// DeleteDocument marks a global document deleted. Documents still in the
// pool are deleted when their segment is sealed.
func (e *Engine) DeleteDocument(global uint32) (bool, error) {
	e.mu.Lock()
	sealed := e.sealedDocs()
	if global >= sealed {
		defer e.mu.Unlock()
		local := global - sealed
		if int(local) >= e.pending {
			return false, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, global)
		}
		for _, d := range e.doomed {
			if d == local {
				return false, nil
			}
		}
		e.doomed = append(e.doomed, local)
		e.metrics.DocDeleted()
		return true, nil
	}
	e.mu.Unlock()

	changed, err := e.Reader().Delete(global)
	if err != nil {
		return false, err
	}
	if changed {
		e.metrics.DocDeleted()
	}
	return changed, nil
}

// Flush seals the buffered documents into a new segment. It is a no-op
// when nothing is buffered.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.pending == 0 {
		return nil
	}
	start := time.Now()
	docs := e.pending
	err := e.seal()
	if err != nil {
		if cancelErr := e.pool.Cancel(); cancelErr != nil {
			e.logger.Warn("cancelling failed pool", "error", cancelErr)
		}
	}
	// The pool is spent whether or not the segment was written.
	e.stored = nil
	e.vectors = nil
	e.pending = 0
	e.doomed = nil
	next, poolErr := e.newPool()
	if poolErr != nil {
		e.logger.Error("creating pool failed", "error", poolErr)
	} else {
		e.pool = next
	}
	if err != nil {
		e.metrics.Flushed("error", time.Since(start).Seconds())
		e.logger.Error("segment flush failed, buffered documents dropped", "docs", docs, "error", err)
		return errors.Join(err, poolErr)
	}
	e.metrics.Flushed("success", time.Since(start).Seconds())
	return poolErr
}

// seal drains the pool into a new segment, opens it and applies pending
// deletions.
func (e *Engine) seal() error {
	tr := tracing.Start("seal")
	endDrain := tr.Phase("drain")
	it, err := e.pool.Drain()
	endDrain()
	if err != nil {
		return fmt.Errorf("draining pool: %w", err)
	}
	name := segment.NewName()
	endWrite := tr.Phase("write")
	_, err = e.writer.Write(name, segment.Input{
		Postings: it,
		Lengths:  e.pool.FieldLengths().Materialize(e.pending),
		Formats:  e.schema,
		Stored:   e.stored,
		DocCount: e.pending,

		VectorFormats: e.schema.VectorFormats(),
		Vectors:       e.vectors,
	})
	if closeErr := it.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("releasing pool: %w", closeErr)
	}
	endWrite()
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}

	// From here on the segment is committed. Any failure must remove it,
	// or recovery would load documents whose numbers were handed out again.
	endOpen := tr.Phase("open")
	reader, err := e.openSegment(e.cfg.DataDir, name)
	if err != nil {
		return e.discard(name, fmt.Errorf("opening new segment: %w", err))
	}
	for _, d := range e.doomed {
		if _, err := reader.Delete(d); err != nil {
			reader.Close()
			return e.discard(name, fmt.Errorf("deleting doc %d of new segment: %w", d, err))
		}
	}
	endOpen()

	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.sealed += uint32(reader.DocCount())
	count := len(e.readers)
	e.readerMu.Unlock()
	e.metrics.SegmentOpened(name, reader.DocCount(), count)
	attrs := []any{
		"segment", name,
		"terms", reader.TermCount(),
		"docs", reader.DocCount(),
		"deleted", reader.DeletedCount(),
		"active_segments", count,
	}
	e.logger.Info("segment flushed", append(attrs, tr.LogAttrs()...)...)
	return nil
}

// discard removes a committed segment that could not be registered.
func (e *Engine) discard(name string, cause error) error {
	if err := segment.Remove(e.cfg.DataDir, name); err != nil {
		e.logger.Error("removing unregistered segment", "segment", name, "error", err)
		return errors.Join(cause, err)
	}
	e.logger.Warn("removed unregistered segment", "segment", name, "error", cause)
	return cause
}

// Reader returns a MultiReader over the sealed segments. The readers are
// owned by the engine; do not Close the result.
func (e *Engine) Reader() *multireader.MultiReader {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return multireader.New(append([]*segment.Reader(nil), e.readers...))
}

// Pending returns the number of documents buffered in the pool.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Engine) sealedDocs() uint32 {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return e.sealed
}

// StartFlushLoop flushes every FlushInterval until ctx is cancelled, then
// flushes one last time.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes buffered documents and closes every segment.
func (e *Engine) Close() error {
	e.mu.Lock()
	err := e.flushLocked()
	if e.pool != nil {
		if cancelErr := e.pool.Cancel(); cancelErr != nil {
			e.logger.Error("cancelling pool", "error", cancelErr)
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.closeReaders()
	return err
}

func (e *Engine) closeReaders() {
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "segment", reader.Name(), "error", err)
		}
	}
	e.readers = nil
	e.sealed = 0
}

func (e *Engine) loadExistingSegments() error {
	removed, err := segment.RemoveTemp(e.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("removing interrupted writes: %w", err)
	}
	if removed > 0 {
		e.logger.Warn("removed files of interrupted segment writes", "files", removed)
	}
	names, err := segment.List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	for _, name := range names {
		// Skipping a committed segment would shift the numbers of every
		// document after it.
		reader, err := segment.Open(e.cfg.DataDir, name)
		if err != nil {
			return fmt.Errorf("opening segment %s: %w", name, err)
		}
		e.readers = append(e.readers, reader)
		e.sealed += uint32(reader.DocCount())
		e.metrics.SegmentOpened(name, reader.DocCount(), len(e.readers))
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.TermCount(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
