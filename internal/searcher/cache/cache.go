// Package cache memoises encoded search responses in Redis. Keys include
// the snapshot opstamp, so a reload naturally stops serving older
// entries; they then expire by TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend. Get reports found=false for a missing
// key without an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type redisStore struct {
	client *pkgredis.Client
}

// NewRedisStore adapts a Redis client to Store.
func NewRedisStore(client *pkgredis.Client) Store {
	return redisStore{client: client}
}

func (s redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s redisStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return s.client.FlushByPattern(ctx, pattern)
}

// Key identifies one cacheable search.
type Key struct {
	Query   string
	Fields  []string
	Limit   int
	Opstamp uint64
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over store. Backend failures trip a circuit
// breaker; while it is open every lookup is a miss.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if m == nil {
		m = metrics.Default()
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for k.
func (c *QueryCache) Get(ctx context.Context, k Key) ([]byte, bool) {
	key := buildKey(k)
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.misses.Add(1)
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHitsTotal.Inc()
	c.logger.Debug("cache hit", "query", k.Query, "key", key)
	return data, true
}

// Set stores an encoded response under k.
func (c *QueryCache) Set(ctx context.Context, k Key, data []byte) {
	key := buildKey(k)
	err := c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for k or computes and stores
// it. Concurrent misses for the same key share one computation.
func (c *QueryCache) GetOrCompute(ctx context.Context, k Key, compute func() ([]byte, error)) ([]byte, bool, error) {
	if data, ok := c.Get(ctx, k); ok {
		return data, true, nil
	}
	val, err, _ := c.group.Do(buildKey(k), func() (any, error) {
		data, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

// Invalidate deletes every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the whitespace-normalised query, the sorted default
// fields, the limit and the opstamp. Case is kept: operators are
// case-sensitive.
func buildKey(k Key) string {
	fields := slices.Clone(k.Fields)
	slices.Sort(fields)
	raw := fmt.Sprintf("%s|fields=%s|limit=%d|opstamp=%d",
		strings.Join(strings.Fields(k.Query), " "),
		strings.Join(fields, ","),
		k.Limit,
		k.Opstamp,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
