// Package schema declares the fields of an index: how each field's values
// are analyzed, which posting format stores them, and whether they are
// scorable or stored.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// FieldType describes one field. A nil Format means the field is stored
// only and never indexed. A non-nil Vector keeps a per-document term vector
// encoded in that format.
type FieldType struct {
	Format   *codec.Format
	Vector   *codec.Format
	Scorable bool
	Stored   bool
}

// Indexed reports whether the field produces postings.
func (ft FieldType) Indexed() bool { return ft.Format != nil }

// WithVector returns ft keeping term vectors of the given kind. The vector
// uses the field's analyzer.
func (ft FieldType) WithVector(kind codec.Kind) FieldType {
	analyzer := tokenizer.Standard
	if ft.Format != nil {
		analyzer = ft.Format.Analyzer()
	}
	ft.Vector = codec.New(kind, codec.WithAnalyzer(analyzer))
	return ft
}

// ID is an indexed, unscored field holding the value as a single term.
func ID(stored bool) FieldType {
	return FieldType{
		Format: codec.New(codec.Existence, codec.WithAnalyzer(tokenizer.Keyword)),
		Stored: stored,
	}
}

// Stored is a field that is only stored.
func Stored() FieldType {
	return FieldType{Stored: true}
}

// Keyword splits on whitespace, or on commas when comma is set, and keeps
// term frequencies.
func Keyword(stored, comma bool, boost float64) FieldType {
	analyzer := tokenizer.Space
	if comma {
		analyzer = tokenizer.Comma
	}
	return FieldType{
		Format:   codec.New(codec.Frequency, codec.WithAnalyzer(analyzer), codec.WithFieldBoost(boost)),
		Scorable: true,
		Stored:   stored,
	}
}

// Text is a scorable full-text field stored with positions.
func Text(stored bool, boost float64) FieldType {
	return FieldType{
		Format:   codec.New(codec.Positions, codec.WithAnalyzer(tokenizer.Standard), codec.WithFieldBoost(boost)),
		Scorable: true,
		Stored:   stored,
	}
}

// Ngram indexes every character n-gram of the value between minSize and
// maxSize runes.
func Ngram(stored bool, minSize, maxSize int) FieldType {
	return FieldType{
		Format: codec.New(codec.Frequency, codec.WithAnalyzer(tokenizer.Ngram(minSize, maxSize))),
		Stored: stored,
	}
}

// Schema is an ordered set of named fields.
type Schema struct {
	fields map[string]FieldType
	names  []string
}

// New returns an empty Schema.
func New() *Schema {
	return &Schema{fields: make(map[string]FieldType)}
}

// Add declares a field. Names must be non-empty, unique and must not start
// with an underscore.
func (s *Schema) Add(name string, ft FieldType) error {
	if name == "" || strings.HasPrefix(name, "_") {
		return fmt.Errorf("%w: invalid field name %q", apperrors.ErrFieldConfiguration, name)
	}
	if _, ok := s.fields[name]; ok {
		return fmt.Errorf("%w: field %q declared twice", apperrors.ErrFieldConfiguration, name)
	}
	if !ft.Indexed() && !ft.Stored && ft.Vector == nil {
		return fmt.Errorf("%w: field %q is neither indexed nor stored", apperrors.ErrFieldConfiguration, name)
	}
	s.fields[name] = ft
	i := sort.SearchStrings(s.names, name)
	s.names = append(s.names, "")
	copy(s.names[i+1:], s.names[i:])
	s.names[i] = name
	return nil
}

// Names returns the field names in sorted order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// Field returns the declared type of name.
func (s *Schema) Field(name string) (FieldType, error) {
	ft, ok := s.fields[name]
	if !ok {
		return FieldType{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownField, name)
	}
	return ft, nil
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Format returns the posting format of an indexed field.
func (s *Schema) Format(name string) (*codec.Format, error) {
	ft, err := s.Field(name)
	if err != nil {
		return nil, err
	}
	if !ft.Indexed() {
		return nil, fmt.Errorf("%w: field %s is not indexed", apperrors.ErrUnknownField, name)
	}
	return ft.Format, nil
}

// VectorFormats maps every field that keeps term vectors to its vector
// format.
func (s *Schema) VectorFormats() map[string]*codec.Format {
	out := make(map[string]*codec.Format)
	for _, name := range s.names {
		if v := s.fields[name].Vector; v != nil {
			out[name] = v
		}
	}
	return out
}

// Scorable reports whether name records field lengths.
func (s *Schema) Scorable(name string) bool {
	return s.fields[name].Scorable
}

// ScorableFields lists the scorable field names in sorted order.
func (s *Schema) ScorableFields() []string {
	return s.filter(func(ft FieldType) bool { return ft.Scorable })
}

// StoredFields lists the stored field names in sorted order.
func (s *Schema) StoredFields() []string {
	return s.filter(func(ft FieldType) bool { return ft.Stored })
}

// IndexedFields lists the indexed field names in sorted order.
func (s *Schema) IndexedFields() []string {
	return s.filter(FieldType.Indexed)
}

func (s *Schema) filter(keep func(FieldType) bool) []string {
	var out []string
	for _, name := range s.names {
		if keep(s.fields[name]) {
			out = append(out, name)
		}
	}
	return out
}

// FromConfig builds a Schema from field declarations.
func FromConfig(fields []config.FieldConfig) (*Schema, error) {
	s := New()
	for _, fc := range fields {
		ft, err := fieldType(fc)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fc.Name, err)
		}
		if err := s.Add(fc.Name, ft); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func fieldType(fc config.FieldConfig) (FieldType, error) {
	boost := fc.FieldBoost
	if boost == 0 {
		boost = 1
	}
	var ft FieldType
	switch strings.ToLower(fc.Type) {
	case "id":
		ft = ID(fc.Stored)
	case "stored":
		return Stored(), nil
	case "keyword":
		ft = Keyword(fc.Stored, fc.Comma, boost)
	case "text", "":
		ft = Text(fc.Stored, boost)
	case "ngram":
		minSize, maxSize := fc.MinGram, fc.MaxGram
		if minSize <= 0 {
			minSize = 2
		}
		if maxSize < minSize {
			maxSize = minSize + 2
		}
		ft = Ngram(fc.Stored, minSize, maxSize)
	default:
		return FieldType{}, fmt.Errorf("%w: unknown field type %q", apperrors.ErrFieldConfiguration, fc.Type)
	}

	if fc.Format != "" || fc.Analyzer != "" || fc.FieldBoost != 0 {
		kind := ft.Format.Kind()
		if fc.Format != "" {
			k, err := codec.ParseKind(fc.Format)
			if err != nil {
				return FieldType{}, err
			}
			kind = k
		}
		analyzer := ft.Format.Analyzer()
		if fc.Analyzer != "" {
			a, err := tokenizer.Lookup(fc.Analyzer)
			if err != nil {
				return FieldType{}, fmt.Errorf("%w: %v", apperrors.ErrFieldConfiguration, err)
			}
			analyzer = a
		}
		ft.Format = codec.New(kind, codec.WithAnalyzer(analyzer), codec.WithFieldBoost(boost))
	}
	if fc.Scorable != nil {
		ft.Scorable = *fc.Scorable
	}
	if fc.Vector != "" {
		kind, err := codec.ParseKind(fc.Vector)
		if err != nil {
			return FieldType{}, err
		}
		ft = ft.WithVector(kind)
	}
	return ft, nil
}
