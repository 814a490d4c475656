package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func newCache(store Store) (*QueryCache, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return New(store, time.Minute, m), m
}

func TestBuildKey(t *testing.T) {
	base := Key{Query: "sea  whale", Fields: []string{"title", "body"}, Limit: 10, Opstamp: 3}
	same := Key{Query: " sea whale ", Fields: []string{"body", "title"}, Limit: 10, Opstamp: 3}
	assert.Equal(t, buildKey(base), buildKey(same))
	assert.Contains(t, buildKey(base), keyPrefix)

	for _, other := range []Key{
		{Query: "sea AND whale", Fields: base.Fields, Limit: 10, Opstamp: 3},
		{Query: "sea whale", Fields: base.Fields, Limit: 5, Opstamp: 3},
		{Query: "sea whale", Fields: base.Fields, Limit: 10, Opstamp: 4},
		{Query: "sea whale", Fields: []string{"title"}, Limit: 10, Opstamp: 3},
	} {
		assert.NotEqual(t, buildKey(base), buildKey(other), "%+v", other)
	}
}

func TestGetOrCompute(t *testing.T) {
	c, m := newCache(newMemStore())
	key := Key{Query: "whale", Limit: 10, Opstamp: 1}
	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte(`{"hits":[]}`), nil
	}

	data, hit, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"hits":[]}`, string(data))

	data, hit, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"hits":[]}`, string(data))

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c, _ := newCache(newMemStore())
	key := Key{Query: "whale", Limit: 10}
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), key, func() ([]byte, error) {
				calls.Add(1)
				<-release
				return []byte("x"), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(4))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c, _ := newCache(newMemStore())
	key := Key{Query: "whale"}
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), key, func() ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
}

func TestBackendFailureDegradesToMiss(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c, _ := newCache(store)

	data, hit, err := c.GetOrCompute(context.Background(), Key{Query: "whale"}, func() ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", string(data))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c, _ := newCache(store)
	c.Set(context.Background(), Key{Query: "a"}, []byte("1"))
	c.Set(context.Background(), Key{Query: "b"}, []byte("2"))
	store.data["other:key"] = []byte("kept")

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "other:key")
}
