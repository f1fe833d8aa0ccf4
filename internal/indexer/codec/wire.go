package codec

import (
	"bytes"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// Encode writes d to w and returns the frequency it represents.
//
// Wire formats:
//
//	existence       (nothing)
//	frequency       freq
//	docboosts       freq, boost8
//	positions       n, n x posDelta
//	characters      n, n x (posDelta, startDelta, endMinusStart)
//	positionboosts  n, n x (posDelta, boost8)
//
// Position deltas run from 0 against the previous position. For characters
// the start offset is a delta against the previous start offset, so spans
// of one term may overlap.
func (f *Format) Encode(w *binstream.Writer, d Data) (int, error) {
	switch f.kind {
	case Existence:
		return 1, nil
	case Frequency:
		w.WriteVarint(uint64(d.Freq))
		return d.Freq, w.Err()
	case DocBoosts:
		w.WriteVarint(uint64(d.Freq))
		w.WriteFloat8(d.DocBoost)
		return d.Freq, w.Err()
	case Positions:
		w.WriteVarint(uint64(len(d.Positions)))
		base := 0
		for _, pos := range d.Positions {
			if pos < base {
				return 0, fmt.Errorf("%w: positions not ascending (%d after %d)", apperrors.ErrInvalidInput, pos, base)
			}
			w.WriteVarint(uint64(pos - base))
			base = pos
		}
		return len(d.Positions), w.Err()
	case Characters:
		w.WriteVarint(uint64(len(d.Spans)))
		posBase, startBase := 0, 0
		for _, s := range d.Spans {
			if s.Pos < posBase || s.StartChar < startBase || s.EndChar < s.StartChar {
				return 0, fmt.Errorf("%w: character spans not ascending at %+v", apperrors.ErrInvalidInput, s)
			}
			w.WriteVarint(uint64(s.Pos - posBase))
			posBase = s.Pos
			w.WriteVarint(uint64(s.StartChar - startBase))
			w.WriteVarint(uint64(s.EndChar - s.StartChar))
			startBase = s.StartChar
		}
		return len(d.Spans), w.Err()
	case PositionBoosts:
		w.WriteVarint(uint64(len(d.Boosts)))
		base := 0
		for _, pb := range d.Boosts {
			if pb.Pos < base {
				return 0, fmt.Errorf("%w: positions not ascending (%d after %d)", apperrors.ErrInvalidInput, pb.Pos, base)
			}
			w.WriteVarint(uint64(pb.Pos - base))
			w.WriteFloat8(pb.Boost)
			base = pb.Pos
		}
		return len(d.Boosts), w.Err()
	}
	return 0, fmt.Errorf("%w: %s", apperrors.ErrFieldConfiguration, f.kind)
}

// Decode reads posting data written by Encode.
func (f *Format) Decode(r *binstream.Reader) (Data, error) {
	var d Data
	switch f.kind {
	case Existence:
		d.Freq = 1
	case Frequency:
		d.Freq = int(r.ReadVarint())
	case DocBoosts:
		d.Freq = int(r.ReadVarint())
		d.DocBoost = r.ReadFloat8()
	case Positions:
		n := r.ReadVarint()
		base := 0
		for i := uint64(0); i < n && r.Err() == nil; i++ {
			base += int(r.ReadVarint())
			d.Positions = append(d.Positions, base)
		}
		d.Freq = len(d.Positions)
	case Characters:
		n := r.ReadVarint()
		posBase, startBase := 0, 0
		for i := uint64(0); i < n && r.Err() == nil; i++ {
			posBase += int(r.ReadVarint())
			startBase += int(r.ReadVarint())
			length := int(r.ReadVarint())
			d.Spans = append(d.Spans, Span{Pos: posBase, StartChar: startBase, EndChar: startBase + length})
		}
		d.Freq = len(d.Spans)
	case PositionBoosts:
		n := r.ReadVarint()
		base := 0
		for i := uint64(0); i < n && r.Err() == nil; i++ {
			base += int(r.ReadVarint())
			d.Boosts = append(d.Boosts, PosBoost{Pos: base, Boost: r.ReadFloat8()})
		}
		d.Freq = len(d.Boosts)
	default:
		return d, fmt.Errorf("%w: %s", apperrors.ErrFieldConfiguration, f.kind)
	}
	if err := r.Err(); err != nil {
		return Data{}, fmt.Errorf("decoding %s posting: %w", f.kind, err)
	}
	return d, nil
}

// DecodePayload decodes a payload produced by Index.
func (f *Format) DecodePayload(payload []byte) (Data, error) {
	return f.Decode(binstream.NewReader(bytes.NewReader(payload)))
}
