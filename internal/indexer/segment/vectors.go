package segment

import (
	"fmt"
	"io"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// VectorEntry is one term of a document's term vector for a field. Payload
// is encoded in the field's vector format.
type VectorEntry struct {
	Term    string
	Weight  float64
	Payload []byte
}

// VectorsFromIndexed converts the output of a vector format's Index call.
func VectorsFromIndexed(entries []codec.Indexed) []VectorEntry {
	out := make([]VectorEntry, len(entries))
	for i, e := range entries {
		out[i] = VectorEntry{Term: e.Term, Weight: e.Weight, Payload: e.Payload}
	}
	return out
}

type vectorWriter struct {
	*recordWriter
}

func newVectorWriter(w io.Writer) (*vectorWriter, error) {
	rw, err := newRecordWriter(w, VectorsMagic, "term vectors")
	if err != nil {
		return nil, err
	}
	return &vectorWriter{rw}, nil
}

// add writes one document's vectors. Entries of each field must be sorted
// by term without duplicates.
func (vw *vectorWriter) add(docNum int, vectors map[string][]VectorEntry) error {
	vw.begin()
	fields := make([]string, 0, len(vectors))
	for field, entries := range vectors {
		if len(entries) > 0 {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	vw.w.WriteVarint(uint64(len(fields)))
	for _, field := range fields {
		entries := vectors[field]
		vw.w.WriteString(field)
		vw.w.WriteVarint(uint64(len(entries)))
		for i, e := range entries {
			if i > 0 && e.Term <= entries[i-1].Term {
				return fmt.Errorf("%w: vector of document %d field %s: %q after %q",
					apperrors.ErrOutOfOrder, docNum, field, e.Term, entries[i-1].Term)
			}
			vw.w.WriteString(e.Term)
			vw.w.WriteFloat64(e.Weight)
			vw.w.WriteBytes(e.Payload)
		}
	}
	return vw.w.Err()
}

type vectorReader struct {
	*recordReader
}

func openVectors(ra io.ReaderAt, size int64) (*vectorReader, error) {
	rr, err := openRecords(ra, size, VectorsMagic, "term vectors")
	if err != nil {
		return nil, err
	}
	return &vectorReader{rr}, nil
}

// vector returns the entries of field in docNum, or nil when the document
// has no vector for it.
func (vr *vectorReader) vector(docNum uint32, field string) ([]VectorEntry, error) {
	r, err := vr.record(docNum)
	if err != nil {
		return nil, err
	}
	fields := int(r.ReadVarint())
	for i := 0; i < fields && r.Err() == nil; i++ {
		name := r.ReadString()
		n := int(r.ReadVarint())
		if name != field {
			for j := 0; j < n && r.Err() == nil; j++ {
				r.ReadString()
				r.ReadFloat64()
				r.ReadBytes()
			}
			continue
		}
		entries := make([]VectorEntry, 0, n)
		for j := 0; j < n && r.Err() == nil; j++ {
			e := VectorEntry{Term: r.ReadString(), Weight: r.ReadFloat64()}
			if payload := r.ReadBytes(); len(payload) > 0 {
				e.Payload = payload
			}
			entries = append(entries, e)
		}
		if err := r.Err(); err != nil {
			break
		}
		return entries, nil
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: vectors of document %d: %v", apperrors.ErrCorruptSegment, docNum, err)
	}
	return nil, nil
}
