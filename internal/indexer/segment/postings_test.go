package segment

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

type cursorItem struct {
	Doc     uint32
	Weight  float64
	Length  byte
	Payload []byte
}

func drainCursor(t *testing.T, c *Cursor) []cursorItem {
	t.Helper()
	var out []cursorItem
	for c.Next() {
		out = append(out, cursorItem{c.ID(), c.Weight(), c.LengthByte(), c.Value()})
	}
	require.NoError(t, c.Err())
	return out
}

func TestPostingWriterBlocks(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))
	pw := NewPostingWriter(&buf, HeaderSize, 4)
	format := codec.New(codec.Frequency)

	var want []cursorItem
	offset := pw.Start(format)
	assert.Equal(t, int64(HeaderSize), offset)
	for i := 0; i < 10; i++ {
		item := cursorItem{Doc: uint32(i * 3), Weight: float64(i + 1), Length: byte(i), Payload: []byte{byte(i + 1)}}
		want = append(want, item)
		require.NoError(t, pw.Write(item.Doc, item.Weight, item.Payload, item.Length))
	}
	assert.Equal(t, 2, pw.BlockCount())
	_, err := pw.AsInline()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	n, err := pw.Finish()
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 3, pw.BlockCount())

	secondOffset := pw.Start(format)
	require.NoError(t, pw.Write(7, 1, []byte{9}, 2))
	_, err = pw.Finish()
	require.NoError(t, err)

	data := buf.Bytes()
	got := drainCursor(t, newBlockCursor(format, bytes.NewReader(data[offset:])))
	assert.Equal(t, want, got)

	second := drainCursor(t, newBlockCursor(format, bytes.NewReader(data[secondOffset:])))
	assert.Equal(t, []cursorItem{{7, 1, 2, []byte{9}}}, second)
}

func TestPostingWriterInline(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPostingWriter(&buf, HeaderSize, 4)
	format := codec.New(codec.Existence)

	pw.Start(format)
	require.NoError(t, pw.Write(42, 2.5, nil, 7))
	inline, err := pw.AsInline()
	require.NoError(t, err)
	pw.Cancel()
	assert.Zero(t, buf.Len(), "inline list must not touch the postings file")

	got := drainCursor(t, newInlineCursor(format, inline))
	assert.Equal(t, []cursorItem{{Doc: 42, Weight: 2.5, Length: 7}}, got)
}

func TestPostingWriterRejectsDescendingDocs(t *testing.T) {
	pw := NewPostingWriter(io.Discard, 0, 2)
	pw.Start(codec.New(codec.Frequency))
	require.NoError(t, pw.Write(5, 1, nil, 0))
	err := pw.Write(3, 1, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)
}

func TestCursorSkipTo(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPostingWriter(&buf, 0, 3)
	format := codec.New(codec.Frequency)
	pw.Start(format)
	for doc := uint32(0); doc < 30; doc += 2 {
		require.NoError(t, pw.Write(doc, 1, nil, 0))
	}
	_, err := pw.Finish()
	require.NoError(t, err)

	c := newBlockCursor(format, bytes.NewReader(buf.Bytes()))
	require.True(t, c.SkipTo(13))
	assert.Equal(t, uint32(14), c.ID())
	require.True(t, c.SkipTo(15))
	assert.Equal(t, uint32(16), c.ID())
	require.True(t, c.Next())
	assert.Equal(t, uint32(18), c.ID())
	assert.False(t, c.SkipTo(100))
	assert.NoError(t, c.Err())
}

func TestCursorSkipToStaysOnCurrent(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPostingWriter(&buf, 0, 2)
	format := codec.New(codec.Frequency)
	pw.Start(format)
	for _, doc := range []uint32{0, 4, 6, 9} {
		require.NoError(t, pw.Write(doc, 1, nil, 0))
	}
	_, err := pw.Finish()
	require.NoError(t, err)

	c := newBlockCursor(format, bytes.NewReader(buf.Bytes()))
	require.True(t, c.SkipTo(4))
	assert.Equal(t, uint32(4), c.ID())
	require.True(t, c.SkipTo(4))
	assert.Equal(t, uint32(4), c.ID())
	require.True(t, c.SkipTo(2))
	assert.Equal(t, uint32(4), c.ID())
	require.True(t, c.SkipTo(5))
	assert.Equal(t, uint32(6), c.ID())

	c = newBlockCursor(format, bytes.NewReader(buf.Bytes()))
	require.True(t, c.SkipTo(0))
	assert.Equal(t, uint32(0), c.ID())
	require.True(t, c.SkipTo(0))
	assert.Equal(t, uint32(0), c.ID())
}

func TestCursorTruncatedList(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPostingWriter(&buf, 0, 2)
	pw.Start(codec.New(codec.Frequency))
	for doc := uint32(0); doc < 5; doc++ {
		require.NoError(t, pw.Write(doc, 1, nil, 0))
	}
	_, err := pw.Finish()
	require.NoError(t, err)

	c := newBlockCursor(codec.New(codec.Frequency), bytes.NewReader(buf.Bytes()[:buf.Len()-4]))
	for c.Next() {
	}
	assert.ErrorIs(t, c.Err(), apperrors.ErrCorruptSegment)
}
