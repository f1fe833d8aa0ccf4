package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

func TestAddKeepsNamesSorted(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("title", Text(true, 2)))
	require.NoError(t, s.Add("id", ID(true)))
	require.NoError(t, s.Add("body", Text(false, 1)))
	require.NoError(t, s.Add("raw", Stored()))

	assert.Equal(t, []string{"body", "id", "raw", "title"}, s.Names())
	assert.Equal(t, []string{"body", "title"}, s.ScorableFields())
	assert.Equal(t, []string{"id", "raw", "title"}, s.StoredFields())
	assert.Equal(t, []string{"body", "id", "title"}, s.IndexedFields())

	f, err := s.Format("title")
	require.NoError(t, err)
	assert.Equal(t, codec.Positions, f.Kind())
	assert.Equal(t, 2.0, f.FieldBoost())
}

func TestAddRejectsBadNames(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("title", Text(false, 1)))

	tests := []struct {
		name string
		ft   FieldType
	}{
		{"", Text(false, 1)},
		{"_hidden", Text(false, 1)},
		{"title", Text(false, 1)},
		{"nothing", FieldType{}},
	}
	for _, tt := range tests {
		err := s.Add(tt.name, tt.ft)
		assert.ErrorIs(t, err, apperrors.ErrFieldConfiguration, "field %q", tt.name)
	}
}

func TestLookupErrors(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("raw", Stored()))

	_, err := s.Format("missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
	_, err = s.Format("raw")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
	assert.False(t, s.Scorable("missing"))
	assert.True(t, s.Has("raw"))
}

func TestFromConfig(t *testing.T) {
	notScorable := false
	s, err := FromConfig([]config.FieldConfig{
		{Name: "id", Type: "id", Stored: true},
		{Name: "content", Type: "text", Format: "characters", FieldBoost: 1.5},
		{Name: "tags", Type: "keyword", Comma: true, Scorable: &notScorable},
		{Name: "title", Type: "ngram", MinGram: 2, MaxGram: 3},
		{Name: "notes", Type: "stored"},
		{Name: "labels", Type: "keyword", Analyzer: "delimited", Format: "position_boosts"},
	})
	require.NoError(t, err)

	content, err := s.Format("content")
	require.NoError(t, err)
	assert.Equal(t, codec.Characters, content.Kind())
	assert.Equal(t, 1.5, content.FieldBoost())
	assert.True(t, s.Scorable("content"))

	tags, err := s.Field("tags")
	require.NoError(t, err)
	assert.False(t, tags.Scorable)
	entries, err := tags.Format.Index("red, green", codec.Context{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "green", entries[0].Term)

	labels, err := s.Format("labels")
	require.NoError(t, err)
	assert.Equal(t, codec.PositionBoosts, labels.Kind())

	id, err := s.Format("id")
	require.NoError(t, err)
	assert.Equal(t, codec.Existence, id.Kind())
	assert.False(t, s.Scorable("id"))
}

func TestFromConfigErrors(t *testing.T) {
	_, err := FromConfig([]config.FieldConfig{{Name: "x", Type: "vector"}})
	assert.ErrorIs(t, err, apperrors.ErrFieldConfiguration)

	_, err = FromConfig([]config.FieldConfig{{Name: "x", Type: "text", Format: "bogus"}})
	assert.ErrorIs(t, err, apperrors.ErrFieldConfiguration)

	_, err = FromConfig([]config.FieldConfig{{Name: "x", Analyzer: "klingon"}})
	assert.ErrorIs(t, err, apperrors.ErrFieldConfiguration)

	_, err = FromConfig([]config.FieldConfig{{Name: "x", Type: "text", Vector: "bogus"}})
	assert.ErrorIs(t, err, apperrors.ErrFieldConfiguration)

	_, err = FromConfig(config.Default().Schema.Fields)
	assert.NoError(t, err)
}

func TestVectorFields(t *testing.T) {
	s, err := FromConfig([]config.FieldConfig{
		{Name: "body", Type: "text", Vector: "positions"},
		{Name: "tags", Type: "keyword", Comma: true, Vector: "frequency"},
		{Name: "title", Type: "text"},
	})
	require.NoError(t, err)

	vectors := s.VectorFormats()
	require.Len(t, vectors, 2)
	assert.Equal(t, codec.Positions, vectors["body"].Kind())
	assert.Equal(t, codec.Frequency, vectors["tags"].Kind())

	entries, err := vectors["tags"].Index("red, green", codec.Context{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "green", entries[0].Term)

	require.NoError(t, s.Add("summary", FieldType{}.WithVector(codec.Frequency)))
	assert.Contains(t, s.VectorFormats(), "summary")
}
