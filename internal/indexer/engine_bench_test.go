package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
)

var benchTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func benchDoc(i int) Document {
	return Document{Fields: map[string]string{
		"id":    fmt.Sprintf("doc-%d", i),
		"title": fmt.Sprintf("document about %s and %s", benchTerms[i%len(benchTerms)], benchTerms[(i+1)%len(benchTerms)]),
		"body": fmt.Sprintf("this document covers %s %s %s in production systems",
			benchTerms[i%len(benchTerms)], benchTerms[(i+2)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)]),
	}}
}

func benchEngine(b *testing.B, kind string) *Engine {
	b.Helper()
	s := schema.New()
	for name, ft := range map[string]schema.FieldType{
		"id":    schema.ID(true),
		"title": schema.Text(true, 2),
		"body":  schema.Text(false, 1),
	} {
		if err := s.Add(name, ft); err != nil {
			b.Fatal(err)
		}
	}
	e, err := NewEngine(context.Background(), config.IndexerConfig{
		DataDir:     filepath.Join(b.TempDir(), "index"),
		TempDir:     b.TempDir(),
		PoolKind:    kind,
		PoolLimitMB: 4,
		InlineLimit: 1,
		BlockSize:   128,
	}, s)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { e.Close() })
	return e
}

// BenchmarkIndexDocument measures buffering throughput per pool kind.
func BenchmarkIndexDocument(b *testing.B) {
	for _, kind := range []string{config.PoolMemory, config.PoolTempfile, config.PoolSQLite} {
		b.Run(kind, func(b *testing.B) {
			e := benchEngine(b, kind)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.IndexDocument(benchDoc(i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkFlush measures sealing 5000 buffered documents into a segment.
func BenchmarkFlush(b *testing.B) {
	e := benchEngine(b, config.PoolTempfile)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for j := 0; j < 5000; j++ {
			if _, err := e.IndexDocument(benchDoc(j)); err != nil {
				b.Fatal(err)
			}
		}
		b.StartTimer()
		if err := e.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPostingsAcrossSegments measures reading one term's postings over
// ten sealed segments.
func BenchmarkPostingsAcrossSegments(b *testing.B) {
	e := benchEngine(b, config.PoolMemory)
	for seg := 0; seg < 10; seg++ {
		for j := 0; j < 1000; j++ {
			if _, err := e.IndexDocument(benchDoc(seg*1000 + j)); err != nil {
				b.Fatal(err)
			}
		}
		if err := e.Flush(); err != nil {
			b.Fatal(err)
		}
	}
	r := e.Reader()
	key := posting.TermKey{Field: "body", Term: "search"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := r.Postings(key)
		if err != nil {
			b.Fatal(err)
		}
		for c.Next() {
		}
		if err := c.Err(); err != nil {
			b.Fatal(err)
		}
	}
}
