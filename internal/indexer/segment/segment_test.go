package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// buildSegment indexes docs (one title value per document) and writes them
// as segment "seg_test".
func buildSegment(t *testing.T, dir string, titles []string, opts ...WriterOption) (*Meta, *Reader) {
	t.Helper()
	format := testFormats["title"]
	tracker := fieldlen.NewTracker()
	var postings []posting.Posting
	stored := make([]map[string]string, len(titles))
	for doc, title := range titles {
		entries, err := format.Index(title, codec.Context{})
		require.NoError(t, err)
		count := 0
		for _, e := range entries {
			postings = append(postings, posting.Posting{
				Field: "title", Term: e.Term, DocNum: uint32(doc), Weight: e.Weight, Payload: e.Payload,
			})
			count += e.Freq
		}
		if count > 0 {
			require.NoError(t, tracker.Record(uint32(doc), "title", count))
		}
		stored[doc] = map[string]string{"title": title}
	}
	it := posting.MergePostings(posting.FromSlice(sortPostings(postings)))
	defer it.Close()

	meta, err := NewWriter(dir, opts...).Write("seg_test", Input{
		Postings: it,
		Lengths:  tracker.Materialize(len(titles)),
		Formats:  testFormats,
		Stored:   stored,
		DocCount: len(titles),
	})
	require.NoError(t, err)

	r, err := Open(dir, "seg_test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return meta, r
}

func sortPostings(in []posting.Posting) []posting.Posting {
	out := append([]posting.Posting(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && posting.Less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func TestSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta, r := buildSegment(t, dir, []string{
		"quick brown fox",
		"lazy dog",
		"quick dog jumps quick",
	})

	assert.Equal(t, 3, meta.DocCount)
	assert.Equal(t, 3, r.DocCount())
	assert.Equal(t, "positions", meta.Fields["title"].Format)
	assert.Equal(t, int64(9), meta.Fields["title"].TotalLength)
	assert.Equal(t, 4, r.MaxFieldLength("title"))
	assert.Equal(t, 2, r.DocFieldLength(1, "title"))
	assert.Equal(t, int64(9), r.FieldLength("title"))

	quick := posting.TermKey{Field: "title", Term: "quick"}
	require.True(t, r.Contains(quick))
	info, err := r.TermInfo(quick)
	require.NoError(t, err)
	assert.Equal(t, 2, info.DocFreq)
	assert.Equal(t, 3.0, info.Weight)

	c, err := r.Postings(quick)
	require.NoError(t, err)
	var docs []uint32
	var positions [][]int
	for c.Next() {
		docs = append(docs, c.ID())
		d, err := c.Data()
		require.NoError(t, err)
		positions = append(positions, d.Positions)
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []uint32{0, 2}, docs)
	assert.Equal(t, [][]int{{0}, {0, 3}}, positions)

	_, err = r.Postings(posting.TermKey{Field: "title", Term: "cat"})
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)

	fields, err := r.StoredFields(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "lazy dog"}, fields)
	_, err = r.StoredFields(3)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	entries, err := posting.Collect(r.Terms())
	require.NoError(t, err)
	assert.Len(t, entries, r.TermCount())
	for i := 1; i < len(entries); i++ {
		assert.Negative(t, entries[i-1].Key.Compare(entries[i].Key))
	}
}

func TestInlineAndBlockListsReadAlike(t *testing.T) {
	dir := t.TempDir()
	_, r := buildSegment(t, dir, []string{"solo pair", "pair"})

	solo, err := r.TermInfo(posting.TermKey{Field: "title", Term: "solo"})
	require.NoError(t, err)
	pair, err := r.TermInfo(posting.TermKey{Field: "title", Term: "pair"})
	require.NoError(t, err)
	assert.True(t, solo.IsInline())
	assert.False(t, pair.IsInline())

	read := func(term string) []cursorItem {
		c, err := r.Postings(posting.TermKey{Field: "title", Term: term})
		require.NoError(t, err)
		return drainCursor(t, c)
	}
	soloItems := read("solo")
	pairItems := read("pair")
	require.Len(t, soloItems, 1)
	require.Len(t, pairItems, 2)
	assert.Equal(t, pairItems[0].Doc, soloItems[0].Doc)
	assert.Equal(t, pairItems[0].Length, soloItems[0].Length)
	assert.Equal(t, pairItems[0].Weight, soloItems[0].Weight)
}

func TestInlineLimitOption(t *testing.T) {
	dir := t.TempDir()
	meta, r := buildSegment(t, dir, []string{"pair", "pair"}, WithInlineLimit(0))
	assert.Zero(t, meta.InlineTerms)
	info, err := r.TermInfo(posting.TermKey{Field: "title", Term: "pair"})
	require.NoError(t, err)
	assert.False(t, info.IsInline())
}

func TestDeletionsPersist(t *testing.T) {
	dir := t.TempDir()
	_, r := buildSegment(t, dir, []string{"a1", "b2", "c3"})

	deleted, err := r.Delete(1)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = r.Delete(1)
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = r.Delete(3)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	reopened, err := Open(dir, "seg_test")
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.IsDeleted(1))
	assert.False(t, reopened.IsDeleted(0))
	assert.Equal(t, 1, reopened.DeletedCount())
}

func TestListAndRemoveTemp(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, []string{"x"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg_1.pst.tmp"), nil, 0o644))

	names, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_test"}, names)

	n, err := RemoveTemp(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	names, err = List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWriteFailureLeavesNoSegment(t *testing.T) {
	dir := t.TempDir()
	input := []posting.Posting{
		{Field: "title", Term: "b", DocNum: 0, Weight: 1},
		{Field: "title", Term: "a", DocNum: 1, Weight: 1},
	}
	_, err := NewWriter(dir).Write("seg_bad", Input{
		Postings: posting.FromSlice(input),
		Formats:  testFormats,
		DocCount: 2,
	})
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrder)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenDetectsCorruptTerms(t *testing.T) {
	dir := t.TempDir()
	_, r := buildSegment(t, dir, []string{"alpha beta"})
	require.NoError(t, r.Close())

	path := segmentPath(dir, "seg_test", ExtTerms)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(dir, "seg_test")
	assert.ErrorIs(t, err, apperrors.ErrCorruptSegment)
}

func TestReloadDeletionsSeesOtherReader(t *testing.T) {
	dir := t.TempDir()
	_, writer := buildSegment(t, dir, []string{"a1", "b2"})
	reader, err := Open(dir, "seg_test")
	require.NoError(t, err)
	defer reader.Close()

	_, err = writer.Delete(0)
	require.NoError(t, err)
	assert.False(t, reader.IsDeleted(0))
	require.NoError(t, reader.ReloadDeletions())
	assert.True(t, reader.IsDeleted(0))
}

func TestOpenRestoresFieldBoost(t *testing.T) {
	dir := t.TempDir()
	boosted := formatMap{"title": codec.New(codec.Positions, codec.WithFieldBoost(2))}
	entries, err := boosted["title"].Index("lamp lamp fish", codec.Context{})
	require.NoError(t, err)
	var postings []posting.Posting
	for _, e := range entries {
		postings = append(postings, posting.Posting{
			Field: "title", Term: e.Term, DocNum: 0, Weight: e.Weight, Payload: e.Payload,
		})
	}
	meta, err := NewWriter(dir).Write("seg_boost", Input{
		Postings: posting.FromSlice(sortPostings(postings)),
		Formats:  boosted,
		DocCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, meta.Fields["title"].FieldBoost)

	r, err := Open(dir, "seg_boost")
	require.NoError(t, err)
	defer r.Close()
	format, err := r.Format("title")
	require.NoError(t, err)
	assert.Equal(t, 2.0, format.FieldBoost())

	c, err := r.Postings(posting.TermKey{Field: "title", Term: "lamp"})
	require.NoError(t, err)
	require.True(t, c.Next())
	d, err := c.Data()
	require.NoError(t, err)
	assert.Equal(t, 4.0, c.Weight())
	assert.Equal(t, c.Weight(), format.Weight(d))
}

func TestVectorsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vf := codec.New(codec.Positions)
	titles := []string{"quick brown fox", "", "fox jumps fox"}
	vectors := make([]map[string][]VectorEntry, len(titles))
	for doc, title := range titles {
		if title == "" {
			continue
		}
		entries, err := vf.Index(title, codec.Context{})
		require.NoError(t, err)
		vectors[doc] = map[string][]VectorEntry{"title": VectorsFromIndexed(entries)}
	}
	meta, err := NewWriter(dir).Write("seg_vec", Input{
		Postings:      posting.Empty[posting.Posting](),
		Formats:       testFormats,
		DocCount:      len(titles),
		VectorFormats: map[string]*codec.Format{"title": vf},
		Vectors:       vectors,
	})
	require.NoError(t, err)
	assert.Equal(t, "positions", meta.Fields["title"].Vector)
	assert.FileExists(t, segmentPath(dir, "seg_vec", ExtVectors))

	r, err := Open(dir, "seg_vec")
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.HasVector(2, "title"))
	assert.False(t, r.HasVector(1, "title"))
	assert.False(t, r.HasVector(2, "body"))

	it, err := r.Vector(2, "title")
	require.NoError(t, err)
	entries, err := posting.Collect(it)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	format, err := r.VectorFormat("title")
	require.NoError(t, err)
	assert.Equal(t, codec.Positions, format.Kind())
	assert.Equal(t, "fox", entries[0].Term)
	d, err := format.DecodePayload(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, d.Positions)
	assert.Equal(t, "jump", entries[1].Term)

	_, err = r.Vector(1, "title")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
	_, err = r.Vector(0, "body")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
	_, err = r.Vector(3, "title")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestSegmentWithoutVectors(t *testing.T) {
	dir := t.TempDir()
	_, r := buildSegment(t, dir, []string{"lone word"})
	assert.NoFileExists(t, segmentPath(dir, "seg_test", ExtVectors))
	assert.False(t, r.HasVector(0, "title"))
	_, err := r.Vector(0, "title")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
	_, err = r.VectorFormat("title")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestWriteRejectsBadVectors(t *testing.T) {
	vf := map[string]*codec.Format{"title": codec.New(codec.Frequency)}
	cases := map[string]struct {
		vectors map[string][]VectorEntry
		want    error
	}{
		"unsorted terms": {
			vectors: map[string][]VectorEntry{"title": {{Term: "b", Weight: 1}, {Term: "a", Weight: 1}}},
			want:    apperrors.ErrOutOfOrder,
		},
		"undeclared field": {
			vectors: map[string][]VectorEntry{"body": {{Term: "a", Weight: 1}}},
			want:    apperrors.ErrFieldConfiguration,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := NewWriter(dir).Write("seg_bad", Input{
				Postings:      posting.Empty[posting.Posting](),
				Formats:       testFormats,
				DocCount:      1,
				VectorFormats: vf,
				Vectors:       []map[string][]VectorEntry{tc.vectors},
			})
			assert.ErrorIs(t, err, tc.want)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRemoveDeletesEveryFile(t *testing.T) {
	dir := t.TempDir()
	_, r := buildSegment(t, dir, []string{"a1", "b2"})
	_, err := r.Delete(0)
	require.NoError(t, err)
	require.FileExists(t, segmentPath(dir, "seg_test", ExtDeletions))
	require.NoError(t, r.Close())

	require.NoError(t, Remove(dir, "seg_test"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, Remove(dir, "seg_test"))
}
