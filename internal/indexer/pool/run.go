package pool

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/binstream"
)

// run is one sorted spill file and the number of postings it holds.
type run struct {
	path  string
	count int
}

// writeRun writes sorted postings to a new file in dir. Each record is
// field, term, docnum, weight, payload. A partially written file is removed
// on failure.
func writeRun(dir string, postings []posting.Posting) (run, int64, error) {
	f, err := os.CreateTemp(dir, "run-*.run")
	if err != nil {
		return run{}, 0, fmt.Errorf("creating run file: %w", err)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	w := binstream.NewWriter(bw)
	for _, p := range postings {
		w.WriteString(p.Field)
		w.WriteString(p.Term)
		w.WriteVarint(uint64(p.DocNum))
		w.WriteFloat64(p.Weight)
		w.WriteBytes(p.Payload)
	}
	err = w.Err()
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return run{}, 0, fmt.Errorf("writing run %s: %w", f.Name(), err)
	}
	return run{path: f.Name(), count: len(postings)}, w.Written(), nil
}

// runReader streams a run file back. The file is deleted as soon as its
// last posting has been read, or when the reader is closed.
type runReader struct {
	run     run
	f       *os.File
	r       *binstream.Reader
	left    int
	current posting.Posting
	err     error
	closed  bool
}

func openRun(rn run) (*runReader, error) {
	f, err := os.Open(rn.path)
	if err != nil {
		return nil, fmt.Errorf("opening run %s: %w", rn.path, err)
	}
	return &runReader{
		run:  rn,
		f:    f,
		r:    binstream.NewReader(bufio.NewReaderSize(f, 64*1024)),
		left: rn.count,
	}, nil
}

func (rr *runReader) Next() bool {
	if rr.closed || rr.err != nil {
		return false
	}
	if rr.left == 0 {
		rr.err = rr.Close()
		return false
	}
	p := posting.Posting{
		Field:  rr.r.ReadString(),
		Term:   rr.r.ReadString(),
		DocNum: uint32(rr.r.ReadVarint()),
		Weight: rr.r.ReadFloat64(),
	}
	p.Payload = rr.r.ReadBytes()
	if err := rr.r.Err(); err != nil {
		rr.err = fmt.Errorf("reading run %s: %w", rr.run.path, err)
		return false
	}
	rr.left--
	rr.current = p
	return true
}

func (rr *runReader) Item() posting.Posting { return rr.current }

func (rr *runReader) Err() error { return rr.err }

func (rr *runReader) Close() error {
	if rr.closed {
		return nil
	}
	rr.closed = true
	err := rr.f.Close()
	return errors.Join(err, removeIfExists(rr.run.path))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
