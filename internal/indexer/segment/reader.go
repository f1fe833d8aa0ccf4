package segment

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// Reader gives read access to one sealed segment. Everything except the
// deletion set is immutable, so a Reader is safe for concurrent use.
type Reader struct {
	dir          string
	meta         Meta
	postings     *os.File
	postingsSize int64
	storedFile   *os.File
	terms        *TermTable
	lengths      *fieldlen.Table
	stored       *storedReader
	deletions    *Deletions
	formats      map[string]*codec.Format
	vectorFile   *os.File
	vectors      *vectorReader
	vecFormats   map[string]*codec.Format
}

// Open opens segment name in dir.
func Open(dir, name string) (*Reader, error) {
	meta, err := ReadMeta(dir, name)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		dir:        dir,
		meta:       *meta,
		formats:    make(map[string]*codec.Format),
		vecFormats: make(map[string]*codec.Format),
	}
	for field, fm := range meta.Fields {
		if fm.Format != "" {
			kind, err := codec.ParseKind(fm.Format)
			if err != nil {
				return nil, fmt.Errorf("segment %s field %s: %w", name, field, err)
			}
			var opts []codec.Option
			if fm.FieldBoost != 0 {
				opts = append(opts, codec.WithFieldBoost(fm.FieldBoost))
			}
			r.formats[field] = codec.New(kind, opts...)
		}
		if fm.Vector != "" {
			kind, err := codec.ParseKind(fm.Vector)
			if err != nil {
				return nil, fmt.Errorf("segment %s field %s vector: %w", name, field, err)
			}
			r.vecFormats[field] = codec.New(kind)
		}
	}
	if err := r.open(name); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) open(name string) error {
	var err error
	r.postings, err = os.Open(segmentPath(r.dir, name, ExtPostings))
	if err != nil {
		return fmt.Errorf("opening postings: %w", err)
	}
	info, err := r.postings.Stat()
	if err != nil {
		return fmt.Errorf("stat postings: %w", err)
	}
	r.postingsSize = info.Size()
	if err := readHeader(io.NewSectionReader(r.postings, 0, HeaderSize), PostingsMagic); err != nil {
		return fmt.Errorf("segment %s postings: %w", name, err)
	}

	trm, err := os.Open(segmentPath(r.dir, name, ExtTerms))
	if err != nil {
		return fmt.Errorf("opening term table: %w", err)
	}
	r.terms, err = ReadTermTable(trm, r.meta.TermsChecksum)
	trm.Close()
	if err != nil {
		return fmt.Errorf("segment %s terms: %w", name, err)
	}

	lenFile, err := os.Open(segmentPath(r.dir, name, ExtLengths))
	if err != nil {
		return fmt.Errorf("opening lengths: %w", err)
	}
	r.lengths, err = fieldlen.ReadTable(bufio.NewReader(lenFile))
	lenFile.Close()
	if err != nil {
		return fmt.Errorf("segment %s: %w", name, err)
	}

	r.storedFile, err = os.Open(segmentPath(r.dir, name, ExtStored))
	if err != nil {
		return fmt.Errorf("opening stored fields: %w", err)
	}
	info, err = r.storedFile.Stat()
	if err != nil {
		return fmt.Errorf("stat stored fields: %w", err)
	}
	r.stored, err = openStored(r.storedFile, info.Size())
	if err != nil {
		return fmt.Errorf("segment %s stored fields: %w", name, err)
	}

	if len(r.vecFormats) > 0 {
		r.vectorFile, err = os.Open(segmentPath(r.dir, name, ExtVectors))
		if err != nil {
			return fmt.Errorf("opening term vectors: %w", err)
		}
		info, err = r.vectorFile.Stat()
		if err != nil {
			return fmt.Errorf("stat term vectors: %w", err)
		}
		r.vectors, err = openVectors(r.vectorFile, info.Size())
		if err != nil {
			return fmt.Errorf("segment %s term vectors: %w", name, err)
		}
	}

	r.deletions, err = loadDeletions(segmentPath(r.dir, name, ExtDeletions))
	return err
}

// ReadMeta reads the metadata of segment name.
func ReadMeta(dir, name string) (*Meta, error) {
	data, err := os.ReadFile(segmentPath(dir, name, ExtMeta))
	if err != nil {
		return nil, fmt.Errorf("reading segment meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing meta of %s: %v", apperrors.ErrCorruptSegment, name, err)
	}
	return &meta, nil
}

// List returns the names of the committed segments in dir in creation
// order. A missing directory holds no segments.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ExtMeta) {
			names = append(names, strings.TrimSuffix(e.Name(), ExtMeta))
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveTemp deletes leftover .tmp files of interrupted writes and returns
// how many were removed.
func RemoveTemp(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+tmpSuffix))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return 0, fmt.Errorf("removing %s: %w", m, err)
		}
	}
	return len(matches), nil
}

// Remove deletes every file of segment name. The .seg file goes first so
// an interrupted removal never leaves a committed segment with missing
// data files.
func Remove(dir, name string) error {
	var errs []error
	for _, ext := range append([]string{ExtMeta}, dataExts...) {
		if err := os.Remove(segmentPath(dir, name, ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s%s: %w", name, ext, err))
		}
	}
	return errors.Join(errs...)
}

// Name returns the segment name.
func (r *Reader) Name() string { return r.meta.Name }

// Meta returns the segment metadata.
func (r *Reader) Meta() Meta { return r.meta }

// DocCount returns the number of documents, deleted ones included.
func (r *Reader) DocCount() int { return r.meta.DocCount }

// Format returns the posting format of field.
func (r *Reader) Format(field string) (*codec.Format, error) {
	f, ok := r.formats[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownField, field)
	}
	return f, nil
}

// Contains reports whether the segment has postings for key.
func (r *Reader) Contains(key posting.TermKey) bool {
	return r.terms.Contains(key)
}

// TermInfo returns the term table entry of key.
func (r *Reader) TermInfo(key posting.TermKey) (TermInfo, error) {
	return r.terms.Lookup(key)
}

// Postings opens a cursor over key's posting list.
func (r *Reader) Postings(key posting.TermKey) (*Cursor, error) {
	info, err := r.terms.Lookup(key)
	if err != nil {
		return nil, err
	}
	format, err := r.Format(key.Field)
	if err != nil {
		return nil, err
	}
	if info.IsInline() {
		return newInlineCursor(format, info.Inline), nil
	}
	if info.Offset < HeaderSize || info.Offset >= r.postingsSize {
		return nil, fmt.Errorf("%w: %s offset %d outside postings file", apperrors.ErrCorruptSegment, key, info.Offset)
	}
	return newBlockCursor(format, io.NewSectionReader(r.postings, info.Offset, r.postingsSize-info.Offset)), nil
}

// IterFrom iterates term entries from the first key at or after key.
func (r *Reader) IterFrom(key posting.TermKey) posting.Iterator[TermEntry] {
	return r.terms.IterFrom(key)
}

// Terms iterates every term entry.
func (r *Reader) Terms() posting.Iterator[TermEntry] {
	return r.terms.All()
}

// TermCount returns the number of distinct terms.
func (r *Reader) TermCount() int { return r.terms.Len() }

// DocFieldLength returns the approximate length of field in docNum.
func (r *Reader) DocFieldLength(docNum uint32, field string) int {
	return r.lengths.Get(docNum, field)
}

// FieldLength returns the total length of field across the segment.
func (r *Reader) FieldLength(field string) int64 {
	return r.lengths.Total(field)
}

// MaxFieldLength returns the longest length of field in the segment.
func (r *Reader) MaxFieldLength(field string) int {
	return r.lengths.Max(field)
}

// StoredFields returns the stored values of docNum.
func (r *Reader) StoredFields(docNum uint32) (map[string]string, error) {
	return r.stored.doc(docNum)
}

// VectorFormat returns the term vector format of field.
func (r *Reader) VectorFormat(field string) (*codec.Format, error) {
	f, ok := r.vecFormats[field]
	if !ok {
		return nil, fmt.Errorf("%w: field %s keeps no vectors", apperrors.ErrUnknownField, field)
	}
	return f, nil
}

// HasVector reports whether docNum has a term vector for field.
func (r *Reader) HasVector(docNum uint32, field string) bool {
	entries, err := r.vectorEntries(docNum, field)
	return err == nil && len(entries) > 0
}

// Vector iterates the term vector of field in docNum in term order. It
// fails with ErrTermNotFound when the document has no vector for field.
func (r *Reader) Vector(docNum uint32, field string) (posting.Iterator[VectorEntry], error) {
	entries, err := r.vectorEntries(docNum, field)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no %s vector for document %d", apperrors.ErrTermNotFound, field, docNum)
	}
	return posting.FromSlice(entries), nil
}

func (r *Reader) vectorEntries(docNum uint32, field string) ([]VectorEntry, error) {
	if int(docNum) >= r.meta.DocCount {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, docNum)
	}
	if _, ok := r.vecFormats[field]; !ok || r.vectors == nil {
		return nil, nil
	}
	return r.vectors.vector(docNum, field)
}

// IsDeleted reports whether docNum is deleted.
func (r *Reader) IsDeleted(docNum uint32) bool {
	return r.deletions.IsDeleted(docNum)
}

// DeletedCount returns the number of deleted documents.
func (r *Reader) DeletedCount() int {
	return r.deletions.Count()
}

// ReloadDeletions rereads the persisted deletion set.
func (r *Reader) ReloadDeletions() error {
	return r.deletions.Reload()
}

// Delete marks docNum deleted and persists the deletion set. It reports
// whether the document was newly deleted.
func (r *Reader) Delete(docNum uint32) (bool, error) {
	if int(docNum) >= r.meta.DocCount {
		return false, fmt.Errorf("%w: %d in segment %s", apperrors.ErrDocumentNotFound, docNum, r.meta.Name)
	}
	return r.deletions.Delete(docNum)
}

// Close releases the segment's file handles.
func (r *Reader) Close() error {
	var errs []error
	if r.postings != nil {
		errs = append(errs, r.postings.Close())
	}
	if r.storedFile != nil {
		errs = append(errs, r.storedFile.Close())
	}
	if r.vectorFile != nil {
		errs = append(errs, r.vectorFile.Close())
	}
	return errors.Join(errs...)
}
