package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

const recordTrailerSize = 12

// recordWriter writes one record per document followed by an offset table
// and a trailer (table offset uint64, document count uint32). Stored fields
// and term vectors share this layout.
type recordWriter struct {
	w       *binstream.Writer
	what    string
	offsets []uint64
}

func newRecordWriter(w io.Writer, magic uint32, what string) (*recordWriter, error) {
	if err := writeHeader(w, magic); err != nil {
		return nil, err
	}
	return &recordWriter{w: binstream.NewWriter(w), what: what}, nil
}

// begin marks the start of the next document's record.
func (rw *recordWriter) begin() {
	rw.offsets = append(rw.offsets, uint64(HeaderSize+rw.w.Written()))
}

func (rw *recordWriter) close() error {
	tableOffset := uint64(HeaderSize + rw.w.Written())
	var buf [8]byte
	for _, off := range rw.offsets {
		binary.LittleEndian.PutUint64(buf[:], off)
		rw.w.WriteRaw(buf[:])
	}
	var trailer [recordTrailerSize]byte
	binary.LittleEndian.PutUint64(trailer[0:8], tableOffset)
	binary.LittleEndian.PutUint32(trailer[8:12], uint32(len(rw.offsets)))
	rw.w.WriteRaw(trailer[:])
	if err := rw.w.Err(); err != nil {
		return fmt.Errorf("writing %s: %w", rw.what, err)
	}
	return nil
}

// recordReader reads individual document records on demand.
type recordReader struct {
	ra          io.ReaderAt
	what        string
	offsets     []int64
	tableOffset int64
}

func openRecords(ra io.ReaderAt, size int64, magic uint32, what string) (*recordReader, error) {
	if size < HeaderSize+recordTrailerSize {
		return nil, fmt.Errorf("%w: %s file too short", apperrors.ErrCorruptSegment, what)
	}
	if err := readHeader(io.NewSectionReader(ra, 0, HeaderSize), magic); err != nil {
		return nil, err
	}
	var trailer [recordTrailerSize]byte
	if _, err := ra.ReadAt(trailer[:], size-recordTrailerSize); err != nil {
		return nil, fmt.Errorf("reading %s trailer: %w", what, err)
	}
	tableOffset := int64(binary.LittleEndian.Uint64(trailer[0:8]))
	count := int(binary.LittleEndian.Uint32(trailer[8:12]))
	if tableOffset+int64(count)*8 != size-recordTrailerSize {
		return nil, fmt.Errorf("%w: %s offset table does not match file size", apperrors.ErrCorruptSegment, what)
	}
	table := make([]byte, count*8)
	if _, err := ra.ReadAt(table, tableOffset); err != nil {
		return nil, fmt.Errorf("reading %s offsets: %w", what, err)
	}
	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(table[i*8:]))
	}
	return &recordReader{ra: ra, what: what, offsets: offsets, tableOffset: tableOffset}, nil
}

func (rr *recordReader) record(docNum uint32) (*binstream.Reader, error) {
	if int(docNum) >= len(rr.offsets) {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, docNum)
	}
	start := rr.offsets[docNum]
	end := rr.tableOffset
	if int(docNum)+1 < len(rr.offsets) {
		end = rr.offsets[docNum+1]
	}
	if end < start {
		return nil, fmt.Errorf("%w: %s record %d has negative length", apperrors.ErrCorruptSegment, rr.what, docNum)
	}
	buf := make([]byte, end-start)
	if _, err := rr.ra.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("reading %s of document %d: %w", rr.what, docNum, err)
	}
	return binstream.NewReader(bytes.NewReader(buf)), nil
}

type storedWriter struct {
	*recordWriter
}

func newStoredWriter(w io.Writer) (*storedWriter, error) {
	rw, err := newRecordWriter(w, StoredMagic, "stored fields")
	if err != nil {
		return nil, err
	}
	return &storedWriter{rw}, nil
}

func (sw *storedWriter) add(fields map[string]string) error {
	sw.begin()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	sw.w.WriteVarint(uint64(len(names)))
	for _, name := range names {
		sw.w.WriteString(name)
		sw.w.WriteString(fields[name])
	}
	return sw.w.Err()
}

type storedReader struct {
	*recordReader
}

func openStored(ra io.ReaderAt, size int64) (*storedReader, error) {
	rr, err := openRecords(ra, size, StoredMagic, "stored fields")
	if err != nil {
		return nil, err
	}
	return &storedReader{rr}, nil
}

func (sr *storedReader) doc(docNum uint32) (map[string]string, error) {
	r, err := sr.record(docNum)
	if err != nil {
		return nil, err
	}
	n := int(r.ReadVarint())
	fields := make(map[string]string, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		name := r.ReadString()
		fields[name] = r.ReadString()
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: stored document %d: %v", apperrors.ErrCorruptSegment, docNum, err)
	}
	return fields, nil
}
