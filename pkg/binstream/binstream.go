// Package binstream provides the ordered binary stream used by posting
// formats, run files and segment files: unsigned varints, 8-bit quantized
// floats, raw float64 values and length-prefixed byte strings.
//
// Writer and Reader keep the first error they encounter and turn every
// later call into a no-op, so callers can issue a sequence of writes or
// reads and check Err once.
package binstream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxBytesLen bounds a single length-prefixed value read from a stream.
const MaxBytesLen = 1 << 30

// Writer encodes values onto an underlying io.Writer.
type Writer struct {
	w       io.Writer
	scratch [binary.MaxVarintLen64]byte
	n       int64
	err     error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(b)
	w.n += int64(n)
	w.err = err
}

// WriteVarint writes v as an unsigned LEB128 varint.
func (w *Writer) WriteVarint(v uint64) {
	n := binary.PutUvarint(w.scratch[:], v)
	w.write(w.scratch[:n])
}

// WriteByte writes a single raw byte.
func (w *Writer) WriteByte(b byte) error {
	w.scratch[0] = b
	w.write(w.scratch[:1])
	return w.err
}

// WriteFloat8 writes f quantized to one byte. See Float8ToByte.
func (w *Writer) WriteFloat8(f float64) {
	_ = w.WriteByte(Float8ToByte(f))
}

// WriteFloat64 writes f as 8 little-endian bytes.
func (w *Writer) WriteFloat64(f float64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], math.Float64bits(f))
	w.write(w.scratch[:8])
}

// WriteBytes writes a varint length followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.write(b)
}

// WriteString writes s the same way as WriteBytes.
func (w *Writer) WriteString(s string) {
	w.WriteVarint(uint64(len(s)))
	if w.err != nil {
		return
	}
	n, err := io.WriteString(w.w, s)
	w.n += int64(n)
	w.err = err
}

// WriteRaw writes b without a length prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.write(b)
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 {
	return w.n
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

// Reader decodes values written by Writer.
type Reader struct {
	r   io.ByteReader
	rr  io.Reader
	n   int64
	err error
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// NewReader wraps r, buffering it if it does not implement io.ByteReader.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, rr: br}
}

// ReadVarint reads an unsigned varint.
func (r *Reader) ReadVarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(countingByteReader{r})
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

// ReadByte reads one raw byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return 0, r.err
	}
	r.n++
	return b, nil
}

// ReadFloat8 reads a float written by WriteFloat8.
func (r *Reader) ReadFloat8() float64 {
	b, _ := r.ReadByte()
	if r.err != nil {
		return 0
	}
	return ByteToFloat8(b)
}

// ReadFloat64 reads a float written by WriteFloat64.
func (r *Reader) ReadFloat64() float64 {
	var buf [8]byte
	r.readFull(buf[:])
	if r.err != nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
}

// ReadBytes reads a length-prefixed byte string.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadVarint()
	if r.err != nil {
		return nil
	}
	if n > MaxBytesLen {
		r.fail(fmt.Errorf("binstream: value length %d exceeds limit", n))
		return nil
	}
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	r.readFull(buf)
	if r.err != nil {
		return nil
	}
	return buf
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	return string(r.ReadBytes())
}

// ReadRaw fills b completely.
func (r *Reader) ReadRaw(b []byte) {
	r.readFull(b)
}

// Consumed returns the number of bytes read so far.
func (r *Reader) Consumed() int64 {
	return r.n
}

// Err returns the first read error. A stream that ends cleanly before a
// value starts reports io.EOF; one that ends inside a value reports
// io.ErrUnexpectedEOF.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readFull(b []byte) {
	if r.err != nil {
		return
	}
	n, err := io.ReadFull(r.rr, b)
	r.n += int64(n)
	if err != nil {
		r.fail(err)
	}
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

type countingByteReader struct {
	r *Reader
}

func (c countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.r.ReadByte()
	if err == nil {
		c.r.n++
	}
	return b, err
}
