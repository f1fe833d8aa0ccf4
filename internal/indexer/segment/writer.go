package segment

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
)

// Meta is the JSON content of a segment's .seg file.
type Meta struct {
	Name          string               `json:"name"`
	DocCount      int                  `json:"docCount"`
	TermCount     int                  `json:"termCount"`
	PostingCount  int                  `json:"postingCount"`
	InlineTerms   int                  `json:"inlineTerms"`
	TermsChecksum uint32               `json:"termsChecksum"`
	Fields        map[string]FieldMeta `json:"fields"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// FieldMeta describes one field of a segment.
type FieldMeta struct {
	Format      string  `json:"format,omitempty"`
	FieldBoost  float64 `json:"fieldBoost,omitempty"`
	Vector      string  `json:"vector,omitempty"`
	TotalLength int64   `json:"totalLength,omitempty"`
	MaxLength   int     `json:"maxLength,omitempty"`
}

// Input is everything a new segment is built from.
type Input struct {
	// Postings must be sorted; it is not closed by Write.
	Postings posting.Iterator[posting.Posting]
	Lengths  *fieldlen.Table
	Formats  FormatLookup
	// Stored holds the stored field values of documents 0..DocCount-1.
	// Missing entries are written as empty documents.
	Stored   []map[string]string
	DocCount int

	// VectorFormats names the fields that keep term vectors. The .vec file
	// is written only when it is non-empty.
	VectorFormats map[string]*codec.Format
	// Vectors holds per-document term vectors, indexed like Stored.
	Vectors []map[string][]VectorEntry
}

// Writer builds segments in one directory.
type Writer struct {
	dir         string
	blockSize   int
	inlineLimit int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithBlockSize(n int) WriterOption {
	return func(w *Writer) { w.blockSize = n }
}

func WithInlineLimit(n int) WriterOption {
	return func(w *Writer) { w.inlineLimit = n }
}

func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a Writer that writes segments into dir.
func NewWriter(dir string, opts ...WriterOption) *Writer {
	w := &Writer{
		dir:         dir,
		blockSize:   DefaultBlockSize,
		inlineLimit: DefaultInlineLimit,
		logger:      logger.WithComponent("segment-writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewName returns a fresh segment name. Names sort in creation order.
func NewName() string {
	return fmt.Sprintf("seg_%020d", time.Now().UnixNano())
}

// tmpFile is one segment file being written under its .tmp name.
type tmpFile struct {
	final string
	f     *os.File
	w     *bufio.Writer
}

type fileSet struct {
	files []*tmpFile
}

func (fs *fileSet) create(path string) (*tmpFile, error) {
	f, err := os.Create(path + tmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	tf := &tmpFile{final: path, f: f, w: bufio.NewWriterSize(f, 64*1024)}
	fs.files = append(fs.files, tf)
	return tf, nil
}

// commit flushes, syncs and renames every file.
func (fs *fileSet) commit() error {
	for _, tf := range fs.files {
		if err := tf.w.Flush(); err != nil {
			return fmt.Errorf("flushing %s: %w", tf.final, err)
		}
		if err := tf.f.Sync(); err != nil {
			return fmt.Errorf("syncing %s: %w", tf.final, err)
		}
		if err := tf.f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", tf.final, err)
		}
	}
	for _, tf := range fs.files {
		if err := os.Rename(tf.f.Name(), tf.final); err != nil {
			return fmt.Errorf("renaming %s: %w", tf.final, err)
		}
	}
	fs.files = nil
	return nil
}

// abort removes whatever is left of the set.
func (fs *fileSet) abort() {
	for _, tf := range fs.files {
		tf.f.Close()
		os.Remove(tf.f.Name())
		os.Remove(tf.final)
	}
	fs.files = nil
}

// Write builds segment name from in. Nothing is visible to readers until
// the metadata file is renamed into place.
func (w *Writer) Write(name string, in Input) (*Meta, error) {
	start := time.Now()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	files := &fileSet{}
	meta, err := w.write(files, name, in)
	if err != nil {
		files.abort()
		return nil, err
	}
	if err := files.commit(); err != nil {
		files.abort()
		return nil, err
	}
	if err := writeMeta(segmentPath(w.dir, name, ExtMeta), meta); err != nil {
		return nil, errors.Join(err, Remove(w.dir, name))
	}
	w.logger.Info("segment written",
		"segment", name,
		"docs", meta.DocCount,
		"terms", meta.TermCount,
		"postings", meta.PostingCount,
		"inline_terms", meta.InlineTerms,
		"duration", time.Since(start),
	)
	return meta, nil
}

func (w *Writer) write(files *fileSet, name string, in Input) (*Meta, error) {
	pst, err := files.create(segmentPath(w.dir, name, ExtPostings))
	if err != nil {
		return nil, err
	}
	if err := writeHeader(pst.w, PostingsMagic); err != nil {
		return nil, err
	}
	trm, err := files.create(segmentPath(w.dir, name, ExtTerms))
	if err != nil {
		return nil, err
	}
	terms, err := NewTermTableWriter(trm.w)
	if err != nil {
		return nil, err
	}

	lengths := in.Lengths
	if lengths == nil {
		lengths = fieldlen.NewTracker().Materialize(in.DocCount)
	}
	pw := NewPostingWriter(pst.w, HeaderSize, w.blockSize)
	stats, err := WritePostings(in.Postings, lengths, in.Formats, terms, pw, w.inlineLimit)
	if err != nil {
		return nil, fmt.Errorf("writing postings of %s: %w", name, err)
	}

	lenFile, err := files.create(segmentPath(w.dir, name, ExtLengths))
	if err != nil {
		return nil, err
	}
	if _, err := lengths.WriteTo(lenFile.w); err != nil {
		return nil, fmt.Errorf("writing lengths of %s: %w", name, err)
	}

	sto, err := files.create(segmentPath(w.dir, name, ExtStored))
	if err != nil {
		return nil, err
	}
	sw, err := newStoredWriter(sto.w)
	if err != nil {
		return nil, err
	}
	for doc := 0; doc < in.DocCount; doc++ {
		var fields map[string]string
		if doc < len(in.Stored) {
			fields = in.Stored[doc]
		}
		if err := sw.add(fields); err != nil {
			return nil, fmt.Errorf("writing stored document %d: %w", doc, err)
		}
	}
	if err := sw.close(); err != nil {
		return nil, err
	}
	if len(in.VectorFormats) > 0 {
		if err := w.writeVectors(files, name, in); err != nil {
			return nil, err
		}
	}

	if w.metrics != nil {
		w.metrics.TermsWritten(stats.Inline, stats.Terms-stats.Inline)
	}
	meta := &Meta{
		Name:          name,
		DocCount:      in.DocCount,
		TermCount:     stats.Terms,
		PostingCount:  stats.Postings,
		InlineTerms:   stats.Inline,
		TermsChecksum: terms.Checksum(),
		Fields:        make(map[string]FieldMeta),
		CreatedAt:     time.Now().UTC(),
	}
	for field, f := range stats.Formats {
		fm := meta.Fields[field]
		fm.Format = f.Kind().String()
		fm.FieldBoost = f.FieldBoost()
		meta.Fields[field] = fm
	}
	for field, f := range in.VectorFormats {
		fm := meta.Fields[field]
		fm.Vector = f.Kind().String()
		meta.Fields[field] = fm
	}
	for _, field := range lengths.Fields() {
		fm := meta.Fields[field]
		fm.TotalLength = lengths.Total(field)
		fm.MaxLength = lengths.Max(field)
		meta.Fields[field] = fm
	}
	return meta, nil
}

func (w *Writer) writeVectors(files *fileSet, name string, in Input) error {
	vec, err := files.create(segmentPath(w.dir, name, ExtVectors))
	if err != nil {
		return err
	}
	vw, err := newVectorWriter(vec.w)
	if err != nil {
		return err
	}
	for doc := 0; doc < in.DocCount; doc++ {
		var vectors map[string][]VectorEntry
		if doc < len(in.Vectors) {
			vectors = in.Vectors[doc]
		}
		for field := range vectors {
			if _, ok := in.VectorFormats[field]; !ok {
				return fmt.Errorf("%w: field %s has no vector format", apperrors.ErrFieldConfiguration, field)
			}
		}
		if err := vw.add(doc, vectors); err != nil {
			return fmt.Errorf("writing vectors of document %d: %w", doc, err)
		}
	}
	return vw.close()
}

func writeMeta(path string, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling segment meta: %w", err)
	}
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing segment meta: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("renaming segment meta: %w", err), os.Remove(tmp))
	}
	return nil
}
