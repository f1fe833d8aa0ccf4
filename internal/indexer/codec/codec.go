// Package codec implements the posting formats. A Format decides, per
// field, what posting data a tokenized value produces and how that data is
// written to and read from a binary stream. The set of formats is closed:
// Existence, Frequency, DocBoosts, Positions, Characters and PositionBoosts.
//
// Every format advertises the metrics it can extract from its posting data
// through Supports and Extract, so readers can interpret postings without
// knowing the concrete format.
package codec

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// Kind tags one of the posting formats.
type Kind uint8

const (
	Existence Kind = iota + 1
	Frequency
	DocBoosts
	Positions
	Characters
	PositionBoosts
)

var kindNames = map[Kind]string{
	Existence:      "existence",
	Frequency:      "frequency",
	DocBoosts:      "docboosts",
	Positions:      "positions",
	Characters:     "characters",
	PositionBoosts: "positionboosts",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a format name from configuration to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.ReplaceAll(name, "_", ""))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown posting format %q", apperrors.ErrFieldConfiguration, name)
}

// Metric names a value that can be extracted from posting data.
type Metric string

const (
	MetricFrequency      Metric = "frequency"
	MetricWeight         Metric = "weight"
	MetricDocBoost       Metric = "doc_boost"
	MetricPositions      Metric = "positions"
	MetricCharacters     Metric = "characters"
	MetricPositionBoosts Metric = "position_boosts"
)

var supported = map[Kind][]Metric{
	Existence:      {MetricFrequency, MetricWeight},
	Frequency:      {MetricFrequency, MetricWeight},
	DocBoosts:      {MetricFrequency, MetricWeight, MetricDocBoost},
	Positions:      {MetricFrequency, MetricWeight, MetricPositions},
	Characters:     {MetricFrequency, MetricWeight, MetricPositions, MetricCharacters},
	PositionBoosts: {MetricFrequency, MetricWeight, MetricPositions, MetricPositionBoosts},
}

// Span is one occurrence with its character offsets.
type Span struct {
	Pos       int
	StartChar int
	EndChar   int
}

// PosBoost is one occurrence with its boost.
type PosBoost struct {
	Pos   int
	Boost float64
}

// Data is decoded posting data. Which members are meaningful depends on
// the format that produced it.
type Data struct {
	Freq      int
	DocBoost  float64
	Positions []int
	Spans     []Span
	Boosts    []PosBoost
}

// Context carries the offsets of a value within a multi-part field and the
// document boost.
type Context struct {
	StartPos  int
	StartChar int
	DocBoost  float64
}

// WordData is the posting data one term contributes for one value.
type WordData struct {
	Term string
	Freq int
	Data Data
}

// Indexed is a term ready to be pooled: its weight and encoded payload.
type Indexed struct {
	Term    string
	Freq    int
	Weight  float64
	Payload []byte
}

// Format is a posting format bound to an analyzer and a field boost.
type Format struct {
	kind       Kind
	fieldBoost float64
	analyzer   tokenizer.Analyzer
}

// Option configures a Format.
type Option func(*Format)

// WithFieldBoost sets the constant boost applied to every weight.
func WithFieldBoost(boost float64) Option {
	return func(f *Format) { f.fieldBoost = boost }
}

// WithAnalyzer sets the analyzer used by Index.
func WithAnalyzer(a tokenizer.Analyzer) Option {
	return func(f *Format) { f.analyzer = a }
}

// New returns a Format of the given kind. The default analyzer is
// tokenizer.Standard and the default field boost is 1.
func New(kind Kind, opts ...Option) *Format {
	f := &Format{kind: kind, fieldBoost: 1, analyzer: tokenizer.Standard}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Format) Kind() Kind { return f.kind }

func (f *Format) FieldBoost() float64 { return f.fieldBoost }

func (f *Format) Analyzer() tokenizer.Analyzer { return f.analyzer }

func (f *Format) String() string {
	return fmt.Sprintf("%s(boost=%g)", f.kind, f.fieldBoost)
}

// Supports reports whether Extract can produce metric from this format's
// posting data.
func (f *Format) Supports(metric Metric) bool {
	for _, m := range supported[f.kind] {
		if m == metric {
			return true
		}
	}
	return false
}

// Metrics lists the supported metrics.
func (f *Format) Metrics() []Metric {
	return append([]Metric(nil), supported[f.kind]...)
}

// Index analyzes value and returns one Indexed entry per distinct term,
// sorted by term.
func (f *Format) Index(value string, ctx Context) ([]Indexed, error) {
	words := f.WordData(f.analyzer.Analyze(value), ctx)
	out := make([]Indexed, 0, len(words))
	var buf bytes.Buffer
	for _, wd := range words {
		buf.Reset()
		w := binstream.NewWriter(&buf)
		if _, err := f.Encode(w, wd.Data); err != nil {
			return nil, fmt.Errorf("encoding %s posting for %q: %w", f.kind, wd.Term, err)
		}
		var payload []byte
		if buf.Len() > 0 {
			payload = bytes.Clone(buf.Bytes())
		}
		out = append(out, Indexed{
			Term:    wd.Term,
			Freq:    wd.Freq,
			Weight:  f.Weight(wd.Data),
			Payload: payload,
		})
	}
	return out, nil
}

// WordData groups tokens by text and builds each term's posting data. The
// result is sorted by term so it is deterministic for a given input.
func (f *Format) WordData(tokens []tokenizer.Token, ctx Context) []WordData {
	docBoost := ctx.DocBoost
	if docBoost == 0 {
		docBoost = 1
	}
	byTerm := make(map[string]*Data)
	var order []string
	for _, t := range tokens {
		d, ok := byTerm[t.Text]
		if !ok {
			d = &Data{DocBoost: docBoost}
			byTerm[t.Text] = d
			order = append(order, t.Text)
		}
		pos := ctx.StartPos + t.Pos
		switch f.kind {
		case Existence:
			d.Freq = 1
			continue
		case Positions:
			d.Positions = append(d.Positions, pos)
		case Characters:
			d.Spans = append(d.Spans, Span{Pos: pos, StartChar: ctx.StartChar + t.StartChar, EndChar: ctx.StartChar + t.EndChar})
		case PositionBoosts:
			boost := t.Boost
			if boost == 0 {
				boost = 1
			}
			d.Boosts = append(d.Boosts, PosBoost{Pos: pos, Boost: boost})
		}
		d.Freq++
	}
	sort.Strings(order)
	out := make([]WordData, 0, len(order))
	for _, term := range order {
		d := byTerm[term]
		out = append(out, WordData{Term: term, Freq: d.Freq, Data: *d})
	}
	return out
}

// Frequency returns the number of occurrences represented by d.
func (f *Format) Frequency(d Data) int {
	switch f.kind {
	case Existence:
		return 1
	case Positions:
		return len(d.Positions)
	case Characters:
		return len(d.Spans)
	case PositionBoosts:
		return len(d.Boosts)
	default:
		return d.Freq
	}
}

// Weight returns the scoring weight of d including the field boost.
func (f *Format) Weight(d Data) float64 {
	freq := float64(f.Frequency(d))
	switch f.kind {
	case Existence:
		return f.fieldBoost
	case DocBoosts:
		return freq * d.DocBoost * f.fieldBoost
	case PositionBoosts:
		var sum float64
		for _, pb := range d.Boosts {
			sum += pb.Boost
		}
		return freq * sum * f.fieldBoost
	default:
		return freq * f.fieldBoost
	}
}

// Extract interprets d as metric. It fails with ErrUnsupportedMetric when
// the format does not carry that metric.
func (f *Format) Extract(d Data, metric Metric) (any, error) {
	if !f.Supports(metric) {
		return nil, fmt.Errorf("%w: %s format has no %q", apperrors.ErrUnsupportedMetric, f.kind, metric)
	}
	switch metric {
	case MetricFrequency:
		return f.Frequency(d), nil
	case MetricWeight:
		return f.Weight(d), nil
	case MetricDocBoost:
		return d.DocBoost, nil
	case MetricPositions:
		switch f.kind {
		case Characters:
			out := make([]int, len(d.Spans))
			for i, s := range d.Spans {
				out[i] = s.Pos
			}
			return out, nil
		case PositionBoosts:
			out := make([]int, len(d.Boosts))
			for i, pb := range d.Boosts {
				out[i] = pb.Pos
			}
			return out, nil
		}
		return d.Positions, nil
	case MetricCharacters:
		return d.Spans, nil
	case MetricPositionBoosts:
		return d.Boosts, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedMetric, metric)
}
