package segment

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// TermInfo is the term table entry of one (field, term): the summed weight
// of its postings, the number of distinct documents, the raw posting count
// and the list location, either a posting file offset or inline data.
type TermInfo struct {
	Weight       float64
	DocFreq      int
	PostingCount int
	Offset       int64
	Inline       []byte
}

// IsInline reports whether the posting list is stored in the entry itself.
func (ti TermInfo) IsInline() bool { return ti.Inline != nil }

// TermEntry pairs a key with its TermInfo.
type TermEntry struct {
	Key  posting.TermKey
	Info TermInfo
}

// TermTableWriter appends entries in strictly ascending key order.
type TermTableWriter struct {
	w     *binstream.Writer
	crc   hash.Hash32
	last  posting.TermKey
	count int
}

// NewTermTableWriter writes the header and returns a writer over w.
func NewTermTableWriter(w io.Writer) (*TermTableWriter, error) {
	if err := writeHeader(w, TermsMagic); err != nil {
		return nil, err
	}
	crc := crc32.NewIEEE()
	return &TermTableWriter{w: binstream.NewWriter(io.MultiWriter(w, crc)), crc: crc}, nil
}

// Add appends one entry. Keys must arrive in strictly ascending order.
func (tw *TermTableWriter) Add(key posting.TermKey, info TermInfo) error {
	if tw.count > 0 && key.Compare(tw.last) <= 0 {
		return apperrors.OutOfOrder(tw.last, key)
	}
	tw.w.WriteString(key.Field)
	tw.w.WriteString(key.Term)
	tw.w.WriteFloat64(info.Weight)
	tw.w.WriteVarint(uint64(info.DocFreq))
	tw.w.WriteVarint(uint64(info.PostingCount))
	if info.IsInline() {
		tw.w.WriteByte(1)
		tw.w.WriteBytes(info.Inline)
	} else {
		tw.w.WriteByte(0)
		tw.w.WriteVarint(uint64(info.Offset))
	}
	if err := tw.w.Err(); err != nil {
		return fmt.Errorf("writing term %s: %w", key, err)
	}
	tw.last = key
	tw.count++
	return nil
}

// Count returns the number of entries added.
func (tw *TermTableWriter) Count() int { return tw.count }

// Checksum returns the CRC-32 of everything after the header.
func (tw *TermTableWriter) Checksum() uint32 { return tw.crc.Sum32() }

// TermTable is a loaded term table, searchable by key.
type TermTable struct {
	entries []TermEntry
}

// ReadTermTable loads a table written by TermTableWriter and verifies its
// checksum.
func ReadTermTable(r io.Reader, checksum uint32) (*TermTable, error) {
	br := bufio.NewReader(r)
	if err := readHeader(br, TermsMagic); err != nil {
		return nil, err
	}
	crc := crc32.NewIEEE()
	in := binstream.NewReader(bufio.NewReader(io.TeeReader(br, crc)))
	var entries []TermEntry
	for {
		field := in.ReadString()
		if errors.Is(in.Err(), io.EOF) {
			break
		}
		e := TermEntry{Key: posting.TermKey{Field: field, Term: in.ReadString()}}
		e.Info.Weight = in.ReadFloat64()
		e.Info.DocFreq = int(in.ReadVarint())
		e.Info.PostingCount = int(in.ReadVarint())
		inline, _ := in.ReadByte()
		if inline == 1 {
			e.Info.Inline = in.ReadBytes()
		} else {
			e.Info.Offset = int64(in.ReadVarint())
		}
		if err := in.Err(); err != nil {
			return nil, fmt.Errorf("%w: reading term table: %v", apperrors.ErrCorruptSegment, err)
		}
		entries = append(entries, e)
	}
	if got := crc.Sum32(); got != checksum {
		return nil, fmt.Errorf("%w: term table checksum %08x, want %08x", apperrors.ErrCorruptSegment, got, checksum)
	}
	return &TermTable{entries: entries}, nil
}

// Len returns the number of terms.
func (t *TermTable) Len() int { return len(t.entries) }

func (t *TermTable) search(key posting.TermKey) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Key.Compare(key) >= 0
	})
}

// Lookup returns the entry for key or ErrTermNotFound.
func (t *TermTable) Lookup(key posting.TermKey) (TermInfo, error) {
	i := t.search(key)
	if i >= len(t.entries) || t.entries[i].Key != key {
		return TermInfo{}, fmt.Errorf("%w: %s", apperrors.ErrTermNotFound, key)
	}
	return t.entries[i].Info, nil
}

// Contains reports whether key is in the table.
func (t *TermTable) Contains(key posting.TermKey) bool {
	i := t.search(key)
	return i < len(t.entries) && t.entries[i].Key == key
}

// IterFrom iterates entries in ascending order starting at the first key
// greater than or equal to key.
func (t *TermTable) IterFrom(key posting.TermKey) posting.Iterator[TermEntry] {
	return posting.FromSlice(t.entries[t.search(key):])
}

// All iterates every entry in ascending order.
func (t *TermTable) All() posting.Iterator[TermEntry] {
	return posting.FromSlice(t.entries)
}

// Fields lists the distinct field names in the table.
func (t *TermTable) Fields() []string {
	var fields []string
	for _, e := range t.entries {
		if n := len(fields); n == 0 || fields[n-1] != e.Key.Field {
			fields = append(fields, e.Key.Field)
		}
	}
	return fields
}
