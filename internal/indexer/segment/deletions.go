package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Deletions is the set of deleted documents of one segment, persisted as a
// roaring bitmap next to the segment files.
type Deletions struct {
	mu   sync.RWMutex
	bm   *roaring.Bitmap
	path string
}

func loadDeletions(path string) (*Deletions, error) {
	bm, err := readBitmap(path)
	if err != nil {
		return nil, err
	}
	return &Deletions{bm: bm, path: path}, nil
}

func readBitmap(path string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return bm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening deletions: %w", err)
	}
	defer f.Close()
	if _, err := bm.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("reading deletions %s: %w", path, err)
	}
	return bm, nil
}

// Reload replaces the in-memory set with the persisted one, picking up
// deletions made by another process.
func (d *Deletions) Reload() error {
	bm, err := readBitmap(d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.bm = bm
	d.mu.Unlock()
	return nil
}

// IsDeleted reports whether docNum is deleted.
func (d *Deletions) IsDeleted(docNum uint32) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bm.Contains(docNum)
}

// Count returns the number of deleted documents.
func (d *Deletions) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int(d.bm.GetCardinality())
}

// Delete marks docNum deleted and rewrites the bitmap file. It reports
// whether the document was newly deleted.
func (d *Deletions) Delete(docNum uint32) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bm.CheckedAdd(docNum) {
		return false, nil
	}
	if err := d.persist(); err != nil {
		d.bm.Remove(docNum)
		return false, err
	}
	return true, nil
}

func (d *Deletions) persist() error {
	tmp := d.path + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating deletions file: %w", err)
	}
	w := bufio.NewWriter(f)
	_, err = d.bm.WriteTo(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing deletions: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("renaming deletions file: %w", err)
	}
	return nil
}
