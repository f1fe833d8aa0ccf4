package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/redis"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  error
	calls int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = value
	return nil
}

func (s *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

var foxStats = []merger.TermStats{{Key: posting.TermKey{Field: "body", Term: "fox"}, DocFreq: 3, CollFreq: 6}}

func TestGetOrComputeCaches(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	c := New(newMemStore(), time.Minute, m)
	q := Query{Kind: "prefix", Field: "body", Prefix: "f", Limit: 10}

	var calls int
	compute := func() ([]merger.TermStats, error) {
		calls++
		return foxStats, nil
	}
	got, hit, err := c.GetOrCompute(context.Background(), q, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, foxStats, got)

	got, hit, err = c.GetOrCompute(context.Background(), q, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, foxStats, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, counterValue(t, reg, "cache_hits_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "cache_misses_total"))
}

func TestGenerationChangesKeys(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	q := Query{Kind: "top", Field: "body", Limit: 5}
	var calls int
	compute := func() ([]merger.TermStats, error) {
		calls++
		return foxStats, nil
	}

	c.SetGeneration("seg_1")
	_, _, err := c.GetOrCompute(context.Background(), q, compute)
	require.NoError(t, err)
	c.SetGeneration("seg_2")
	_, hit, err := c.GetOrCompute(context.Background(), q, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Query{Kind: "prefix"}, func() ([]merger.TermStats, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)
}

func TestStoreFailureFallsBackToCompute(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	got, hit, err := c.GetOrCompute(context.Background(), Query{Kind: "prefix"}, func() ([]merger.TermStats, error) {
		return foxStats, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, foxStats, got)
}

func TestFailingStoreIsShed(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	compute := func() ([]merger.TermStats, error) { return foxStats, nil }

	for i := 0; i < 10; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), Query{Kind: "prefix", Limit: i}, compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, foxStats, got)
	}
	// Five failed calls (three lookups, two writes) open the breaker.
	assert.Equal(t, 5, store.calls)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]merger.TermStats, error) {
		calls.Add(1)
		<-release
		return foxStats, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), Query{Kind: "prefix", Field: "body"}, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other"] = []byte("x")
	c := New(store, time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), Query{Kind: "prefix"}, func() ([]merger.TermStats, error) {
		return foxStats, nil
	})
	require.NoError(t, err)
	require.Len(t, store.data, 2)

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Len(t, store.data, 1)
	assert.Contains(t, store.data, "other")
}
