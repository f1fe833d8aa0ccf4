package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
)

// DefaultLimit is the default in-memory budget of a TempfilePool.
const DefaultLimit int64 = 32 * 1024 * 1024

// Options configures the spilling pools.
type Options struct {
	// Limit is the byte budget of buffered postings. Zero means DefaultLimit.
	Limit int64
	// TempDir is the parent of the pool's run directory. Empty means the
	// system temporary directory.
	TempDir string
	Metrics *metrics.Metrics
}

func (o Options) limit() int64 {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// TempfilePool buffers postings in memory and spills sorted runs to files
// in a directory it creates on the first spill and removes once drained or
// cancelled.
type TempfilePool struct {
	base
	opts    Options
	limit   int64
	size    int64
	buf     []posting.Posting
	runs    []run
	runDir  string
	state   State
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTempfilePool returns an empty TempfilePool.
func NewTempfilePool(fields FieldLookup, opts Options) *TempfilePool {
	return &TempfilePool{
		base:    newBase(fields),
		opts:    opts,
		limit:   opts.limit(),
		logger:  logger.WithComponent("pool"),
		metrics: opts.Metrics,
	}
}

// State returns the pool's lifecycle state.
func (p *TempfilePool) State() State { return p.state }

// Size returns the estimated bytes currently buffered in memory.
func (p *TempfilePool) Size() int64 { return p.size }

// RunCount returns the number of runs spilled so far.
func (p *TempfilePool) RunCount() int { return len(p.runs) }

// RunDir returns the run directory, or "" before the first spill.
func (p *TempfilePool) RunDir() string { return p.runDir }

// AddPosting buffers one posting. When the buffer is already at or over the
// budget it is spilled before the posting is accepted.
func (p *TempfilePool) AddPosting(post posting.Posting) error {
	if !p.state.accepting() {
		return closedError(p.state)
	}
	if p.size >= p.limit {
		if err := p.Spill(); err != nil {
			return err
		}
	}
	p.buf = append(p.buf, post)
	p.size += int64(post.Size())
	p.state = StateBuffering
	p.metrics.Buffered(len(p.buf))
	return nil
}

func (p *TempfilePool) AddContent(docNum uint32, field, value string, ctx codec.Context) (int, error) {
	if !p.state.accepting() {
		return 0, closedError(p.state)
	}
	return p.addContent(p.AddPosting, docNum, field, value, ctx)
}

// Spill sorts the buffered postings and writes them as a new run. It is a
// no-op when nothing is buffered.
func (p *TempfilePool) Spill() error {
	if !p.state.accepting() {
		return closedError(p.state)
	}
	if len(p.buf) == 0 {
		return nil
	}
	if err := p.ensureRunDir(); err != nil {
		return err
	}
	slices.SortFunc(p.buf, posting.Compare)
	rn, written, err := writeRun(p.runDir, p.buf)
	if err != nil {
		return err
	}
	p.runs = append(p.runs, rn)
	p.logger.Debug("spilled run",
		"run", rn.path,
		"postings", rn.count,
		"bytes", written,
		"runs", len(p.runs),
	)
	p.metrics.Spilled("tempfile", written)
	clear(p.buf)
	p.buf = p.buf[:0]
	p.size = 0
	p.state = StateSpilled
	p.metrics.Buffered(0)
	return nil
}

func (p *TempfilePool) ensureRunDir() error {
	if p.runDir != "" {
		return nil
	}
	dir, err := os.MkdirTemp(p.opts.TempDir, "postingpool-")
	if err != nil {
		return fmt.Errorf("creating pool directory: %w", err)
	}
	p.runDir = dir
	return nil
}

// Drain returns all postings in sorted order. Without runs the buffer is
// sorted in place; otherwise the buffer is spilled as a final run and the
// runs are merged, one open file per run.
func (p *TempfilePool) Drain() (posting.Iterator[posting.Posting], error) {
	if !p.state.accepting() {
		return nil, closedError(p.state)
	}
	if len(p.runs) == 0 {
		slices.SortFunc(p.buf, posting.Compare)
		sorted := p.buf
		p.buf = nil
		p.size = 0
		p.state = StateDraining
		return posting.OnClose(posting.FromSlice(sorted), p.finish), nil
	}

	if err := p.Spill(); err != nil {
		return nil, errors.Join(err, p.Cancel())
	}
	inputs := make([]posting.Iterator[posting.Posting], 0, len(p.runs))
	for _, rn := range p.runs {
		rr, err := openRun(rn)
		if err != nil {
			for _, in := range inputs {
				in.Close()
			}
			return nil, errors.Join(err, p.Cancel())
		}
		inputs = append(inputs, rr)
	}
	p.state = StateDraining
	p.logger.Debug("merging runs", "runs", len(p.runs))
	return posting.OnClose(posting.MergePostings(inputs...), p.finish), nil
}

// Cancel discards everything buffered or spilled. Cancelling a finished
// pool is a no-op.
func (p *TempfilePool) Cancel() error {
	if p.state == StateFinished {
		return nil
	}
	clear(p.buf)
	p.buf = nil
	p.size = 0
	p.metrics.Buffered(0)
	return p.finish()
}

// finish deletes the run files and removes the run directory if it is
// empty. Anything else found in the directory is left alone.
func (p *TempfilePool) finish() error {
	p.state = StateFinished
	var errs []error
	for _, rn := range p.runs {
		if err := removeIfExists(rn.path); err != nil {
			errs = append(errs, err)
		}
	}
	p.runs = nil
	if p.runDir != "" {
		if err := os.Remove(p.runDir); err != nil && !os.IsNotExist(err) {
			p.logger.Debug("run directory not removed", "dir", p.runDir, "error", err)
		}
		p.runDir = ""
	}
	return errors.Join(errs...)
}
