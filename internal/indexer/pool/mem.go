package pool

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
)

// MemPool keeps every posting in memory and never spills.
type MemPool struct {
	base
	buf     []posting.Posting
	state   State
	metrics *metrics.Metrics
}

// NewMemPool returns an empty MemPool. m may be nil.
func NewMemPool(fields FieldLookup, m *metrics.Metrics) *MemPool {
	return &MemPool{base: newBase(fields), metrics: m}
}

func (p *MemPool) State() State { return p.state }

func (p *MemPool) AddPosting(post posting.Posting) error {
	if !p.state.accepting() {
		return closedError(p.state)
	}
	p.buf = append(p.buf, post)
	p.state = StateBuffering
	p.metrics.Buffered(len(p.buf))
	return nil
}

func (p *MemPool) AddContent(docNum uint32, field, value string, ctx codec.Context) (int, error) {
	if !p.state.accepting() {
		return 0, closedError(p.state)
	}
	return p.addContent(p.AddPosting, docNum, field, value, ctx)
}

func (p *MemPool) Drain() (posting.Iterator[posting.Posting], error) {
	if !p.state.accepting() {
		return nil, closedError(p.state)
	}
	slices.SortFunc(p.buf, posting.Compare)
	sorted := p.buf
	p.buf = nil
	p.state = StateDraining
	return posting.OnClose(posting.FromSlice(sorted), func() error {
		p.state = StateFinished
		p.metrics.Buffered(0)
		return nil
	}), nil
}

func (p *MemPool) Cancel() error {
	p.buf = nil
	p.state = StateFinished
	p.metrics.Buffered(0)
	return nil
}

// NullPool accepts and discards postings. Field lengths are still tracked.
type NullPool struct {
	base
}

// NewNullPool returns a NullPool.
func NewNullPool(fields FieldLookup) *NullPool {
	return &NullPool{base: newBase(fields)}
}

func (p *NullPool) AddPosting(posting.Posting) error { return nil }

func (p *NullPool) AddContent(docNum uint32, field, value string, ctx codec.Context) (int, error) {
	return p.addContent(func(posting.Posting) error { return nil }, docNum, field, value, ctx)
}

func (p *NullPool) Drain() (posting.Iterator[posting.Posting], error) {
	return posting.Empty[posting.Posting](), nil
}

func (p *NullPool) Cancel() error { return nil }

var (
	_ Pool = (*TempfilePool)(nil)
	_ Pool = (*MemPool)(nil)
	_ Pool = (*NullPool)(nil)
	_ Pool = (*SQLPool)(nil)
)
