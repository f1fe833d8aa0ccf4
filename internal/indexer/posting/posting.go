// Package posting defines the posting record that flows from the indexing
// pool to the segment writer, the pull-based Iterator used for every lazy
// sequence in the indexer, and the k-way merge over sorted iterators.
package posting

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
)

// Posting is one occurrence record of a term in a document. Payload holds
// the field format's encoded posting data.
type Posting struct {
	Field   string
	Term    string
	DocNum  uint32
	Weight  float64
	Payload []byte
}

// TermKey identifies a term within one field's namespace.
type TermKey struct {
	Field string
	Term  string
}

func (k TermKey) String() string {
	return fmt.Sprintf("%s:%q", k.Field, k.Term)
}

// Compare orders keys by field name, then term text.
func (k TermKey) Compare(o TermKey) int {
	if c := strings.Compare(k.Field, o.Field); c != 0 {
		return c
	}
	return strings.Compare(k.Term, o.Term)
}

// Key returns the posting's (field, term) key.
func (p Posting) Key() TermKey {
	return TermKey{Field: p.Field, Term: p.Term}
}

// Size estimates the in-memory footprint of p for pool accounting.
func (p Posting) Size() int {
	return len(p.Field) + len(p.Term) + RecordOverhead + len(p.Payload)
}

// RecordOverhead is the fixed per-posting cost added by Size.
const RecordOverhead = 18

// Compare is the natural total order of postings: lexicographic on
// (Field, Term, DocNum, Weight, Payload).
func Compare(a, b Posting) int {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DocNum, b.DocNum); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Weight, b.Weight); c != 0 {
		return c
	}
	return bytes.Compare(a.Payload, b.Payload)
}

// Less reports whether a sorts before b.
func Less(a, b Posting) bool {
	return Compare(a, b) < 0
}
