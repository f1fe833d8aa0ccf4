// Package cache memoizes term statistics listings in Redis. Keys carry the
// index generation, so a newly sealed segment makes older entries
// unreachable even before Invalidate removes them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/resilience"
)

const keyPrefix = "terms:"

// Store is the key/value backend. *redis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Query identifies one cached listing.
type Query struct {
	Kind   string // "prefix" or "top"
	Field  string
	Prefix string
	Limit  int
}

// TermCache caches term statistics listings keyed by Query.
type TermCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger

	mu         sync.RWMutex
	generation string
}

// New returns a cache over store. Entries expire after ttl. After repeated
// store failures the cache stops calling store for a while and every lookup
// is a miss.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *TermCache {
	return &TermCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		breaker: resilience.NewCircuitBreaker("term-cache", resilience.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		}),
		logger: logger.WithComponent("term-cache"),
	}
}

// SetGeneration changes the index generation that new keys are built
// from.
func (c *TermCache) SetGeneration(gen string) {
	c.mu.Lock()
	c.generation = gen
	c.mu.Unlock()
}

func (c *TermCache) get(ctx context.Context, key string) ([]merger.TermStats, bool) {
	var data []byte
	miss := false
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrMiss) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil || miss {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheLookup(false)
		return nil, false
	}
	var stats []merger.TermStats
	if err := json.Unmarshal(data, &stats); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheLookup(false)
		return nil, false
	}
	c.metrics.CacheLookup(true)
	c.logger.Debug("cache hit", "key", key)
	return stats, true
}

func (c *TermCache) set(ctx context.Context, key string, stats []merger.TermStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error { return c.store.Set(ctx, key, data, c.ttl) })
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached listing for q, or runs compute once per
// key across concurrent callers and caches its result. The boolean reports
// a cache hit. Cache failures only cost a recomputation.
func (c *TermCache) GetOrCompute(ctx context.Context, q Query, compute func() ([]merger.TermStats, error)) ([]merger.TermStats, bool, error) {
	key := c.key(q)
	if stats, ok := c.get(ctx, key); ok {
		return stats, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		stats, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, stats)
		return stats, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]merger.TermStats), false, nil
}

// Invalidate removes every cached listing.
func (c *TermCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating term cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *TermCache) key(q Query) string {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	raw := fmt.Sprintf("%s\x00%s\x00%s\x00%d", q.Kind, q.Field, q.Prefix, q.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, gen, hash[:16])
}
