package segment

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// DefaultBlockSize is the number of postings per block.
const DefaultBlockSize = 128

// A posting list on disk is a sequence of blocks closed by a zero count:
//
//	block  = count, lastDoc, size, size bytes of entries
//	entry  = docDelta, weight (float64), lengthByte, payload (length-prefixed)
//
// Doc deltas run across block boundaries, starting from 0. An inline list
// is count followed by the entries, with no block framing.

type pendingPosting struct {
	docNum  uint32
	weight  float64
	payload []byte
	length  byte
}

// PostingWriter writes the posting lists of one segment. Lists are written
// one at a time: Start, any number of Write calls, then Finish or Cancel.
type PostingWriter struct {
	w         *binstream.Writer
	base      int64
	blockSize int

	format     *codec.Format
	started    bool
	offset     int64
	pending    []pendingPosting
	lastDoc    uint32
	blockCount int
	postTotal  int
	block      bytes.Buffer
}

// NewPostingWriter writes lists to w, whose first byte sits at file offset
// base.
func NewPostingWriter(w io.Writer, base int64, blockSize int) *PostingWriter {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &PostingWriter{w: binstream.NewWriter(w), base: base, blockSize: blockSize}
}

// Offset returns the file offset of the next byte to be written.
func (pw *PostingWriter) Offset() int64 {
	return pw.base + pw.w.Written()
}

// Start opens a new posting list for format and returns its file offset.
func (pw *PostingWriter) Start(format *codec.Format) int64 {
	pw.format = format
	pw.started = true
	pw.offset = pw.Offset()
	pw.pending = pw.pending[:0]
	pw.lastDoc = 0
	pw.blockCount = 0
	pw.postTotal = 0
	return pw.offset
}

// Write appends one posting to the open list. lengthByte is the document's
// quantized field length.
func (pw *PostingWriter) Write(docNum uint32, weight float64, payload []byte, lengthByte byte) error {
	if !pw.started {
		return fmt.Errorf("%w: posting written outside a list", apperrors.ErrInvalidInput)
	}
	pw.pending = append(pw.pending, pendingPosting{docNum: docNum, weight: weight, payload: payload, length: lengthByte})
	pw.postTotal++
	if len(pw.pending) >= pw.blockSize {
		return pw.flushBlock()
	}
	return nil
}

// BlockCount returns the number of blocks written for the open list.
func (pw *PostingWriter) BlockCount() int { return pw.blockCount }

// PostTotal returns the number of postings written to the open list.
func (pw *PostingWriter) PostTotal() int { return pw.postTotal }

// Format returns the format of the open list.
func (pw *PostingWriter) Format() *codec.Format { return pw.format }

func (pw *PostingWriter) flushBlock() error {
	if len(pw.pending) == 0 {
		return nil
	}
	pw.block.Reset()
	prev := pw.lastDoc
	if err := encodeEntries(binstream.NewWriter(&pw.block), pw.pending, &prev); err != nil {
		return err
	}
	pw.w.WriteVarint(uint64(len(pw.pending)))
	pw.w.WriteVarint(uint64(prev))
	pw.w.WriteVarint(uint64(pw.block.Len()))
	pw.w.WriteRaw(pw.block.Bytes())
	if err := pw.w.Err(); err != nil {
		return fmt.Errorf("writing posting block: %w", err)
	}
	pw.lastDoc = prev
	pw.blockCount++
	pw.pending = pw.pending[:0]
	return nil
}

func encodeEntries(w *binstream.Writer, entries []pendingPosting, prev *uint32) error {
	for _, e := range entries {
		if e.docNum < *prev {
			return apperrors.OutOfOrder(*prev, e.docNum)
		}
		w.WriteVarint(uint64(e.docNum - *prev))
		w.WriteFloat64(e.weight)
		if err := w.WriteByte(e.length); err != nil {
			return err
		}
		w.WriteBytes(e.payload)
		*prev = e.docNum
	}
	return w.Err()
}

// Finish writes the remaining postings and the list terminator, closes the
// list and returns its posting count.
func (pw *PostingWriter) Finish() (int, error) {
	if !pw.started {
		return 0, fmt.Errorf("%w: finish without an open list", apperrors.ErrInvalidInput)
	}
	if err := pw.flushBlock(); err != nil {
		return 0, err
	}
	pw.w.WriteVarint(0)
	if err := pw.w.Err(); err != nil {
		return 0, fmt.Errorf("finishing posting list: %w", err)
	}
	pw.started = false
	return pw.postTotal, nil
}

// AsInline encodes the open list for storage in the term table. It is only
// valid while no block has been written.
func (pw *PostingWriter) AsInline() ([]byte, error) {
	if pw.blockCount > 0 {
		return nil, fmt.Errorf("%w: list already spilled %d blocks", apperrors.ErrInvalidInput, pw.blockCount)
	}
	var buf bytes.Buffer
	w := binstream.NewWriter(&buf)
	w.WriteVarint(uint64(len(pw.pending)))
	var prev uint32
	if err := encodeEntries(w, pw.pending, &prev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Cancel drops the open list without writing anything further. Blocks that
// were already written stay in the file unreferenced.
func (pw *PostingWriter) Cancel() {
	pw.pending = pw.pending[:0]
	pw.started = false
}

// Cursor walks one posting list, block-backed or inline.
type Cursor struct {
	format *codec.Format
	br     *bufio.Reader
	r      *binstream.Reader
	inline bool

	left    int // entries left in the current block or inline list
	lastDoc uint32
	done    bool
	onEntry bool

	doc     uint32
	weight  float64
	length  byte
	payload []byte
	err     error
}

// newBlockCursor reads the list starting at r's position.
func newBlockCursor(format *codec.Format, r io.Reader) *Cursor {
	br := bufio.NewReaderSize(r, 16*1024)
	return &Cursor{format: format, br: br, r: binstream.NewReader(br)}
}

// newInlineCursor reads a list produced by PostingWriter.AsInline.
func newInlineCursor(format *codec.Format, data []byte) *Cursor {
	br := bufio.NewReader(bytes.NewReader(data))
	c := &Cursor{format: format, br: br, r: binstream.NewReader(br), inline: true}
	c.left = int(c.r.ReadVarint())
	if err := c.r.Err(); err != nil {
		c.fail(err)
	}
	return c
}

// Next advances to the following posting.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if c.left == 0 {
		if c.inline || !c.nextBlock(0) {
			c.done = true
			return false
		}
	}
	return c.readEntry()
}

// nextBlock positions the cursor on the next block whose last document is at
// least target, skipping the others unread.
func (c *Cursor) nextBlock(target uint32) bool {
	for {
		count := int(c.r.ReadVarint())
		if c.r.Err() != nil {
			c.fail(c.r.Err())
			return false
		}
		if count == 0 {
			return false
		}
		last := uint32(c.r.ReadVarint())
		size := int(c.r.ReadVarint())
		if c.r.Err() != nil {
			c.fail(c.r.Err())
			return false
		}
		if last >= target {
			c.left = count
			return true
		}
		if _, err := c.br.Discard(size); err != nil {
			c.fail(err)
			return false
		}
		c.lastDoc = last
	}
}

func (c *Cursor) readEntry() bool {
	c.doc = c.lastDoc + uint32(c.r.ReadVarint())
	c.weight = c.r.ReadFloat64()
	c.length, _ = c.r.ReadByte()
	c.payload = c.r.ReadBytes()
	if err := c.r.Err(); err != nil {
		c.fail(err)
		return false
	}
	c.lastDoc = c.doc
	c.left--
	c.onEntry = true
	return true
}

// SkipTo advances to the first posting with a document number of at least
// target. A cursor already on such a posting stays put. Whole blocks ending
// before target are skipped without decoding.
func (c *Cursor) SkipTo(target uint32) bool {
	if c.done {
		return false
	}
	if c.onEntry && c.doc >= target {
		return true
	}
	for c.left > 0 {
		if !c.readEntry() {
			return false
		}
		if c.doc >= target {
			return true
		}
	}
	if c.inline || !c.nextBlock(target) {
		c.done = true
		return false
	}
	for c.Next() {
		if c.doc >= target {
			return true
		}
	}
	return false
}

func (c *Cursor) fail(err error) {
	c.err = fmt.Errorf("%w: reading postings: %v", apperrors.ErrCorruptSegment, err)
	c.done = true
	c.onEntry = false
}

// ID returns the current document number.
func (c *Cursor) ID() uint32 { return c.doc }

// Weight returns the current posting's weight.
func (c *Cursor) Weight() float64 { return c.weight }

// Value returns the current posting's encoded payload.
func (c *Cursor) Value() []byte { return c.payload }

// LengthByte returns the quantized field length stored with the posting.
func (c *Cursor) LengthByte() byte { return c.length }

// Data decodes the current payload with the list's format.
func (c *Cursor) Data() (codec.Data, error) {
	return c.format.DecodePayload(c.payload)
}

// Format returns the list's posting format.
func (c *Cursor) Format() *codec.Format { return c.format }

// Err returns the first read error.
func (c *Cursor) Err() error { return c.err }
