// Package segment writes and reads sealed index segments.
//
// A segment named N lives in one directory as a set of files:
//
//	N.pst  posting lists, grouped in blocks
//	N.trm  term table: one TermInfo per (field, term), ascending
//	N.len  quantized field lengths per document
//	N.sto  stored field values per document
//	N.vec  term vectors per document (only when a field keeps vectors)
//	N.del  roaring bitmap of deleted documents (optional)
//	N.seg  JSON metadata, written last
//
// Every file is written under a .tmp name and renamed once complete. The
// metadata rename is the commit point: a segment without its .seg file does
// not exist.
package segment

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
)

// File magics. Each binary segment file starts with its magic followed by
// FormatVersion, both little-endian uint32.
const (
	PostingsMagic uint32 = 0x53505354 // "SPST"
	TermsMagic    uint32 = 0x5350544d // "SPTM"
	StoredMagic   uint32 = 0x5350534f // "SPSO"
	VectorsMagic  uint32 = 0x53505643 // "SPVC"
	FormatVersion uint32 = 1
	HeaderSize           = 8
)

// File extensions.
const (
	ExtPostings  = ".pst"
	ExtTerms     = ".trm"
	ExtLengths   = ".len"
	ExtStored    = ".sto"
	ExtVectors   = ".vec"
	ExtDeletions = ".del"
	ExtMeta      = ".seg"
	tmpSuffix    = ".tmp"
)

// dataExts are the files a committed segment may own besides its .seg.
var dataExts = []string{ExtPostings, ExtTerms, ExtLengths, ExtStored, ExtVectors, ExtDeletions}

func segmentPath(dir, name, ext string) string {
	return filepath.Join(dir, name+ext)
}

func writeHeader(w io.Writer, magic uint32) error {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], FormatVersion)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

func readHeader(r io.Reader, magic uint32) error {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: reading header: %v", apperrors.ErrCorruptSegment, err)
	}
	if got := binary.LittleEndian.Uint32(hdr[0:4]); got != magic {
		return fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptSegment, got)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", apperrors.ErrCorruptSegment, v)
	}
	return nil
}
