// Package fieldlen tracks per-document field lengths for scorable fields.
// Lengths are stored as one quantized byte per document and field.
package fieldlen

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// LengthToByte quantizes a token count to one byte. Counts up to 16 are
// exact; above that the code grows logarithmically (about 6% per step) and
// saturates at 255.
func LengthToByte(length int) byte {
	if length <= 0 {
		return 0
	}
	if length <= exactLimit {
		return byte(length)
	}
	code := exactLimit + int(math.Round(math.Log(float64(length)/exactLimit)/logStep))
	if code > 255 {
		return 255
	}
	return byte(code)
}

// ByteToLength expands a code from LengthToByte.
func ByteToLength(b byte) int {
	if int(b) <= exactLimit {
		return int(b)
	}
	return int(math.Round(exactLimit * math.Exp(float64(int(b)-exactLimit)*logStep)))
}

const (
	exactLimit = 16
	logStep    = 0.06
)

// Tracker accumulates field lengths while a segment is being built.
type Tracker struct {
	arrays map[string][]byte
	totals map[string]int64
	maxes  map[string]int
	last   map[string]lastLength
}

type lastLength struct {
	doc    uint32
	length int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		arrays: make(map[string][]byte),
		totals: make(map[string]int64),
		maxes:  make(map[string]int),
		last:   make(map[string]lastLength),
	}
}

// Record stores length for field in docNum, zero-filling any gap. Documents
// must arrive in non-decreasing order per field; recording the same document
// again adds to its length.
func (t *Tracker) Record(docNum uint32, field string, length int) error {
	arr := t.arrays[field]
	if int(docNum)+1 < len(arr) {
		return apperrors.OutOfOrder(
			fmt.Sprintf("%s@%d", field, len(arr)-1),
			fmt.Sprintf("%s@%d", field, docNum),
		)
	}
	t.totals[field] += int64(length)
	if last, ok := t.last[field]; ok && last.doc == docNum {
		length += last.length
	}
	t.last[field] = lastLength{doc: docNum, length: length}
	if length > t.maxes[field] {
		t.maxes[field] = length
	}
	for len(arr) <= int(docNum) {
		arr = append(arr, 0)
	}
	arr[docNum] = LengthToByte(length)
	t.arrays[field] = arr
	return nil
}

// Totals returns the summed length of every tracked field.
func (t *Tracker) Totals() map[string]int64 {
	out := make(map[string]int64, len(t.totals))
	for k, v := range t.totals {
		out[k] = v
	}
	return out
}

// Maxes returns the longest recorded length of every tracked field.
func (t *Tracker) Maxes() map[string]int {
	out := make(map[string]int, len(t.maxes))
	for k, v := range t.maxes {
		out[k] = v
	}
	return out
}

// Materialize zero-pads every array to docCount and returns an immutable
// Table. The Tracker must not be used afterwards.
func (t *Tracker) Materialize(docCount int) *Table {
	arrays := make(map[string][]byte, len(t.arrays))
	for field, arr := range t.arrays {
		if len(arr) < docCount {
			arr = append(arr, make([]byte, docCount-len(arr))...)
		}
		arrays[field] = arr
	}
	return &Table{docCount: docCount, arrays: arrays, totals: t.Totals(), maxes: t.Maxes()}
}

// Table is the read-only length table of a sealed segment.
type Table struct {
	docCount int
	arrays   map[string][]byte
	totals   map[string]int64
	maxes    map[string]int
}

// DocCount returns the number of documents the table covers.
func (t *Table) DocCount() int { return t.docCount }

// Byte returns the quantized length of field in docNum, 0 when unknown.
func (t *Table) Byte(docNum uint32, field string) byte {
	if t == nil {
		return 0
	}
	arr := t.arrays[field]
	if int(docNum) >= len(arr) {
		return 0
	}
	return arr[docNum]
}

// Get returns the approximate length of field in docNum, 0 when unknown.
func (t *Table) Get(docNum uint32, field string) int {
	return ByteToLength(t.Byte(docNum, field))
}

// Total returns the summed length of field across the table.
func (t *Table) Total(field string) int64 {
	if t == nil {
		return 0
	}
	return t.totals[field]
}

// Max returns the longest length of field across the table.
func (t *Table) Max(field string) int {
	if t == nil {
		return 0
	}
	return t.maxes[field]
}

// Fields lists the tracked field names in sorted order.
func (t *Table) Fields() []string {
	names := make([]string, 0, len(t.arrays))
	for name := range t.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteTo serializes the table: doc count, field count, then per field its
// name, total, max and docCount length bytes.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	bw := binstream.NewWriter(w)
	bw.WriteVarint(uint64(t.docCount))
	fields := t.Fields()
	bw.WriteVarint(uint64(len(fields)))
	for _, name := range fields {
		bw.WriteString(name)
		bw.WriteVarint(uint64(t.totals[name]))
		bw.WriteVarint(uint64(t.maxes[name]))
		bw.WriteRaw(t.arrays[name])
	}
	return bw.Written(), bw.Err()
}

// ReadTable reads a table written by WriteTo.
func ReadTable(r io.Reader) (*Table, error) {
	br := binstream.NewReader(r)
	docCount := int(br.ReadVarint())
	n := int(br.ReadVarint())
	t := &Table{
		docCount: docCount,
		arrays:   make(map[string][]byte, n),
		totals:   make(map[string]int64, n),
		maxes:    make(map[string]int, n),
	}
	for i := 0; i < n && br.Err() == nil; i++ {
		name := br.ReadString()
		t.totals[name] = int64(br.ReadVarint())
		t.maxes[name] = int(br.ReadVarint())
		arr := make([]byte, docCount)
		br.ReadRaw(arr)
		t.arrays[name] = arr
	}
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("reading length table: %w", err)
	}
	return t, nil
}
