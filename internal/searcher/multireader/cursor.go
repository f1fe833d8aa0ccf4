package multireader

import (
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/segment"
)

// MultiCursor chains per-segment posting cursors in segment order. Document
// numbers are global: each segment's local numbers are shifted by its
// offset, so IDs stay ascending across the chain.
type MultiCursor struct {
	cursors []*segment.Cursor
	offsets []uint32
	idx     int
	doc     uint32
	onEntry bool
	err     error
}

// Next advances to the following posting.
func (m *MultiCursor) Next() bool {
	for m.idx < len(m.cursors) {
		c := m.cursors[m.idx]
		if c.Next() {
			m.doc = m.offsets[m.idx] + c.ID()
			m.onEntry = true
			return true
		}
		if err := c.Err(); err != nil {
			m.err = err
			break
		}
		m.idx++
	}
	m.onEntry = false
	return false
}

// SkipTo advances to the first posting whose global document number is at
// least target. A cursor already on such a posting stays put.
func (m *MultiCursor) SkipTo(target uint32) bool {
	if m.onEntry && m.doc >= target {
		return true
	}
	for m.idx < len(m.cursors) {
		off := m.offsets[m.idx]
		var local uint32
		if target > off {
			local = target - off
		}
		c := m.cursors[m.idx]
		if c.SkipTo(local) {
			m.doc = off + c.ID()
			m.onEntry = true
			return true
		}
		if err := c.Err(); err != nil {
			m.err = err
			break
		}
		m.idx++
	}
	m.onEntry = false
	return false
}

func (m *MultiCursor) current() *segment.Cursor { return m.cursors[min(m.idx, len(m.cursors)-1)] }

// ID returns the current global document number.
func (m *MultiCursor) ID() uint32 { return m.doc }

// Weight returns the current posting's weight.
func (m *MultiCursor) Weight() float64 { return m.current().Weight() }

// Value returns the current posting's encoded payload.
func (m *MultiCursor) Value() []byte { return m.current().Value() }

// LengthByte returns the quantized field length stored with the posting.
func (m *MultiCursor) LengthByte() byte { return m.current().LengthByte() }

// Data decodes the current payload.
func (m *MultiCursor) Data() (codec.Data, error) { return m.current().Data() }

// Format returns the posting format of the current segment's list.
func (m *MultiCursor) Format() *codec.Format { return m.current().Format() }

// Segments returns the number of segments contributing postings.
func (m *MultiCursor) Segments() int { return len(m.cursors) }

// Err returns the first read error.
func (m *MultiCursor) Err() error { return m.err }
