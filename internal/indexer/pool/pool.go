// Package pool buffers postings while a segment is being built and hands
// them back to the segment writer as one globally sorted stream.
//
// TempfilePool keeps postings in memory up to a byte budget and spills
// sorted runs to temporary files when the budget is exceeded; draining then
// merges the runs. MemPool never spills, NullPool discards everything, and
// SQLPool buffers through a relational store.
package pool

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/fieldlen"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// Pool accumulates the postings of one segment. A pool is used by a single
// goroutine and drained exactly once.
type Pool interface {
	// AddPosting buffers one posting.
	AddPosting(p posting.Posting) error
	// AddContent indexes value with the field's format, buffers one posting
	// per distinct term and returns the number of tokens indexed. For
	// scorable fields a nonzero token count is recorded as the document's
	// field length.
	AddContent(docNum uint32, field, value string, ctx codec.Context) (int, error)
	// AddFieldLength records length for field in docNum.
	AddFieldLength(docNum uint32, field string, length int) error
	// FieldLengths returns the tracker fed by AddContent and AddFieldLength.
	FieldLengths() *fieldlen.Tracker
	// Drain returns every buffered posting in sorted order. Closing the
	// iterator releases all temporary storage.
	Drain() (posting.Iterator[posting.Posting], error)
	// Cancel discards buffered and spilled postings.
	Cancel() error
}

// FieldLookup resolves the format and scoring flag of a field.
type FieldLookup interface {
	Format(field string) (*codec.Format, error)
	Scorable(field string) bool
}

// State is a pool's position in its lifecycle.
type State int

const (
	StateEmpty State = iota
	StateBuffering
	StateSpilled
	StateDraining
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuffering:
		return "buffering"
	case StateSpilled:
		return "spilled"
	case StateDraining:
		return "draining"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// accepting reports whether postings can still be added.
func (s State) accepting() bool {
	return s < StateDraining
}

// base carries what every pool shares: the field lookup and the length
// tracker.
type base struct {
	fields  FieldLookup
	lengths *fieldlen.Tracker
}

func newBase(fields FieldLookup) base {
	return base{fields: fields, lengths: fieldlen.NewTracker()}
}

func (b *base) FieldLengths() *fieldlen.Tracker { return b.lengths }

func (b *base) AddFieldLength(docNum uint32, field string, length int) error {
	return b.lengths.Record(docNum, field, length)
}

// addContent is AddContent for any pool; add buffers a single posting.
func (b *base) addContent(add func(posting.Posting) error, docNum uint32, field, value string, ctx codec.Context) (int, error) {
	if b.fields == nil {
		return 0, fmt.Errorf("%w: pool has no field lookup", apperrors.ErrFieldConfiguration)
	}
	format, err := b.fields.Format(field)
	if err != nil {
		return 0, err
	}
	entries, err := format.Index(value, ctx)
	if err != nil {
		return 0, fmt.Errorf("indexing field %s of doc %d: %w", field, docNum, err)
	}
	count := 0
	for _, e := range entries {
		p := posting.Posting{
			Field:   field,
			Term:    e.Term,
			DocNum:  docNum,
			Weight:  e.Weight,
			Payload: e.Payload,
		}
		if err := add(p); err != nil {
			return count, err
		}
		count += e.Freq
	}
	if count > 0 && b.fields.Scorable(field) {
		if err := b.lengths.Record(docNum, field, count); err != nil {
			return count, err
		}
	}
	return count, nil
}

func closedError(s State) error {
	return fmt.Errorf("%w: pool is %s", apperrors.ErrPoolClosed, s)
}
