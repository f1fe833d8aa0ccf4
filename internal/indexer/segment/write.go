package segment

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// DefaultInlineLimit is the largest posting count stored inline.
const DefaultInlineLimit = 1

// FormatLookup resolves a field name to its posting format.
type FormatLookup interface {
	Format(field string) (*codec.Format, error)
}

// WriteStats summarizes one WritePostings call.
type WriteStats struct {
	Terms    int
	Inline   int
	Postings int
	// Formats maps every field seen to its posting format.
	Formats map[string]*codec.Format
}

// WritePostings consumes a sorted posting stream, writes each term's list
// through pw and adds one TermInfo per term to terms. A term whose list has
// at most inlineLimit postings and never filled a block is stored inline.
// A posting whose key sorts before the current term aborts the write with
// ErrOutOfOrder. The iterator is not closed.
func WritePostings(
	postings posting.Iterator[posting.Posting],
	lengths *fieldlen.Table,
	formats FormatLookup,
	terms *TermTableWriter,
	pw *PostingWriter,
	inlineLimit int,
) (WriteStats, error) {
	stats := WriteStats{Formats: make(map[string]*codec.Format)}
	var (
		current posting.TermKey
		first   = true
		weight  float64
		docFreq int
		lastDoc uint32
		offset  int64
		format  *codec.Format
	)

	closeGroup := func() error {
		info := TermInfo{Weight: weight, DocFreq: docFreq}
		count := pw.PostTotal()
		if count <= inlineLimit && pw.BlockCount() < 1 {
			inline, err := pw.AsInline()
			if err != nil {
				return err
			}
			pw.Cancel()
			info.Inline = inline
			stats.Inline++
		} else {
			n, err := pw.Finish()
			if err != nil {
				return err
			}
			count = n
			info.Offset = offset
		}
		info.PostingCount = count
		stats.Terms++
		return terms.Add(current, info)
	}

	for postings.Next() {
		p := postings.Item()
		key := p.Key()
		switch c := key.Compare(current); {
		case first || c > 0:
			if !first {
				if err := closeGroup(); err != nil {
					return stats, err
				}
			}
			if first || key.Field != current.Field {
				f, err := formats.Format(key.Field)
				if err != nil {
					return stats, fmt.Errorf("format for field %s: %w", key.Field, err)
				}
				format = f
				stats.Formats[key.Field] = f
			}
			first = false
			current = key
			weight = 0
			docFreq = 0
			offset = pw.Start(format)
		case c < 0:
			return stats, apperrors.OutOfOrder(current, key)
		}

		if pw.PostTotal() == 0 || p.DocNum != lastDoc {
			docFreq++
		}
		lastDoc = p.DocNum
		weight += p.Weight
		if err := pw.Write(p.DocNum, p.Weight, p.Payload, lengths.Byte(p.DocNum, p.Field)); err != nil {
			return stats, fmt.Errorf("writing posting for %s: %w", key, err)
		}
		stats.Postings++
	}
	if err := postings.Err(); err != nil {
		return stats, err
	}
	if !first {
		if err := closeGroup(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
