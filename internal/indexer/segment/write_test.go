package segment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

type formatMap map[string]*codec.Format

func (m formatMap) Format(field string) (*codec.Format, error) {
	if f, ok := m[field]; ok {
		return f, nil
	}
	return nil, apperrors.ErrUnknownField
}

var testFormats = formatMap{
	"content": codec.New(codec.Frequency),
	"title":   codec.New(codec.Positions),
	"tags":    codec.New(codec.Existence),
}

type termSink struct {
	buf     bytes.Buffer
	postBuf bytes.Buffer
	terms   *TermTableWriter
	pw      *PostingWriter
}

func newTermSink(t *testing.T, blockSize int) *termSink {
	t.Helper()
	s := &termSink{}
	var err error
	s.terms, err = NewTermTableWriter(&s.buf)
	require.NoError(t, err)
	s.postBuf.Write(make([]byte, HeaderSize))
	s.pw = NewPostingWriter(&s.postBuf, HeaderSize, blockSize)
	return s
}

func (s *termSink) table(t *testing.T) *TermTable {
	t.Helper()
	table, err := ReadTermTable(bytes.NewReader(s.buf.Bytes()), s.terms.Checksum())
	require.NoError(t, err)
	return table
}

func TestWritePostingsAggregatesTerm(t *testing.T) {
	input := []posting.Posting{
		{Field: "content", Term: "apple", DocNum: 1, Weight: 1.5},
		{Field: "content", Term: "apple", DocNum: 1, Weight: 0.5},
		{Field: "content", Term: "apple", DocNum: 4, Weight: 2},
		{Field: "content", Term: "apple", DocNum: 9, Weight: 3},
		{Field: "content", Term: "pear", DocNum: 2, Weight: 1},
	}
	s := newTermSink(t, 128)
	stats, err := WritePostings(posting.FromSlice(input), nil, testFormats, s.terms, s.pw, DefaultInlineLimit)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Terms)
	assert.Equal(t, 1, stats.Inline)
	assert.Equal(t, 5, stats.Postings)
	require.Contains(t, stats.Formats, "content")
	assert.Equal(t, codec.Frequency, stats.Formats["content"].Kind())

	table := s.table(t)
	apple, err := table.Lookup(posting.TermKey{Field: "content", Term: "apple"})
	require.NoError(t, err)
	assert.Equal(t, 7.0, apple.Weight)
	assert.Equal(t, 3, apple.DocFreq)
	assert.Equal(t, 4, apple.PostingCount)
	assert.False(t, apple.IsInline())
	assert.Equal(t, int64(HeaderSize), apple.Offset)

	pear, err := table.Lookup(posting.TermKey{Field: "content", Term: "pear"})
	require.NoError(t, err)
	assert.True(t, pear.IsInline())
	assert.Equal(t, 1, pear.DocFreq)
	assert.Equal(t, 1, pear.PostingCount)
}

func TestWritePostingsOrderingViolation(t *testing.T) {
	input := []posting.Posting{
		{Field: "title", Term: "b", DocNum: 0, Weight: 1},
		{Field: "title", Term: "a", DocNum: 0, Weight: 1},
	}
	s := newTermSink(t, 128)
	_, err := WritePostings(posting.FromSlice(input), nil, testFormats, s.terms, s.pw, 1)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)

	input = []posting.Posting{
		{Field: "title", Term: "a", DocNum: 0, Weight: 1},
		{Field: "content", Term: "z", DocNum: 0, Weight: 1},
	}
	s = newTermSink(t, 128)
	_, err = WritePostings(posting.FromSlice(input), nil, testFormats, s.terms, s.pw, 1)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)
}

func TestWritePostingsUnknownField(t *testing.T) {
	s := newTermSink(t, 128)
	input := []posting.Posting{{Field: "nope", Term: "x"}}
	_, err := WritePostings(posting.FromSlice(input), nil, testFormats, s.terms, s.pw, 1)
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestWritePostingsEmptyInput(t *testing.T) {
	s := newTermSink(t, 128)
	stats, err := WritePostings(posting.Empty[posting.Posting](), nil, testFormats, s.terms, s.pw, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.Terms)
	assert.Zero(t, s.table(t).Len())
}

func TestWritePostingsInlineNeedsUnspilledWriter(t *testing.T) {
	// With a block size of 1 the single posting fills a block before the
	// term closes, so it cannot be inlined.
	s := newTermSink(t, 1)
	input := []posting.Posting{{Field: "content", Term: "solo", DocNum: 3, Weight: 1}}
	stats, err := WritePostings(posting.FromSlice(input), nil, testFormats, s.terms, s.pw, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.Inline)
	info, err := s.table(t).Lookup(posting.TermKey{Field: "content", Term: "solo"})
	require.NoError(t, err)
	assert.False(t, info.IsInline())
	assert.Equal(t, 1, info.PostingCount)
}

func TestWritePostingsStoresLengthBytes(t *testing.T) {
	tracker := fieldlen.NewTracker()
	require.NoError(t, tracker.Record(0, "content", 3))
	require.NoError(t, tracker.Record(1, "content", 40))
	lengths := tracker.Materialize(2)

	input := []posting.Posting{
		{Field: "content", Term: "x", DocNum: 0, Weight: 1},
		{Field: "content", Term: "x", DocNum: 1, Weight: 1},
	}
	s := newTermSink(t, 128)
	_, err := WritePostings(posting.FromSlice(input), lengths, testFormats, s.terms, s.pw, 1)
	require.NoError(t, err)

	info, err := s.table(t).Lookup(posting.TermKey{Field: "content", Term: "x"})
	require.NoError(t, err)
	c := newBlockCursor(testFormats["content"], bytes.NewReader(s.postBuf.Bytes()[info.Offset:]))
	got := drainCursor(t, c)
	require.Len(t, got, 2)
	assert.Equal(t, lengths.Byte(0, "content"), got[0].Length)
	assert.Equal(t, lengths.Byte(1, "content"), got[1].Length)
}

func TestTermTableWriterRejectsUnsortedKeys(t *testing.T) {
	var buf bytes.Buffer
	tw, err := NewTermTableWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, tw.Add(posting.TermKey{Field: "a", Term: "b"}, TermInfo{Offset: 8}))
	err = tw.Add(posting.TermKey{Field: "a", Term: "b"}, TermInfo{Offset: 8})
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)
	err = tw.Add(posting.TermKey{Field: "a", Term: "a"}, TermInfo{Offset: 8})
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)
}

func TestTermTableIterFromAndChecksum(t *testing.T) {
	var buf bytes.Buffer
	tw, err := NewTermTableWriter(&buf)
	require.NoError(t, err)
	keys := []posting.TermKey{
		{Field: "body", Term: "apple"},
		{Field: "body", Term: "apricot"},
		{Field: "body", Term: "banana"},
		{Field: "title", Term: "apple"},
	}
	for i, k := range keys {
		require.NoError(t, tw.Add(k, TermInfo{Weight: float64(i), DocFreq: 1, PostingCount: 1, Inline: []byte{1, byte(i)}}))
	}

	table, err := ReadTermTable(bytes.NewReader(buf.Bytes()), tw.Checksum())
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "title"}, table.Fields())

	entries, err := posting.Collect(table.IterFrom(posting.TermKey{Field: "body", Term: "apr"}))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, keys[1], entries[0].Key)
	assert.Equal(t, []byte{1, 1}, entries[0].Info.Inline)

	assert.True(t, table.Contains(keys[3]))
	_, err = table.Lookup(posting.TermKey{Field: "title", Term: "zebra"})
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)

	_, err = ReadTermTable(bytes.NewReader(buf.Bytes()), tw.Checksum()+1)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSegment)
}
