package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

type memStore struct{ data map[string][]byte }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	n := int64(len(s.data))
	clear(s.data)
	return n, nil
}

type fixture struct {
	idx     *indexer.Index
	mux     *http.ServeMux
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	b := schema.NewBuilder()
	_, err := b.AddTextField("title", schema.FieldOptions{Stored: true})
	require.NoError(t, err)
	_, err = b.AddTextField("body", schema.FieldOptions{})
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	idx, err := indexer.New(b.Build(), config.Default(), indexer.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	w, err := idx.Writer(0, 0)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(document.New().
		AddText("title", "The Old Man and the Sea").
		AddText("body", "an old man who fished alone in a skiff")))
	require.NoError(t, w.AddDocument(document.New().
		AddText("title", "Of Mice and Men").
		AddText("body", "the Salinas river drops in close to the hillside")))
	_, err = w.Commit()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, idx.Reload(context.Background()))

	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: map[string][]byte{}}, time.Minute, m)
	}
	mux := http.NewServeMux()
	New(idx, qc, m, 10, 100).Routes(mux)
	return &fixture{idx: idx, mux: mux, metrics: m}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=skiff")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "skiff", resp.Query)
	assert.Equal(t, uint64(1), resp.TotalHits)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, []any{"The Old Man and the Sea"}, resp.Hits[0].Doc["title"])
	assert.Equal(t, uint64(1), resp.Opstamp)
	assert.Equal(t, "disabled", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestSearchFields(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=river&fields=title")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(0), resp.TotalHits)
	assert.Empty(t, resp.Hits)
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		target string
		status int
	}{
		{"/api/v1/search", http.StatusBadRequest},
		{"/api/v1/search?q=sea&limit=0", http.StatusBadRequest},
		{"/api/v1/search?q=bod:men", http.StatusBadRequest},
		{"/api/v1/search?q=%22unterminated", http.StatusBadRequest},
		{"/api/v1/search?q=sea&fields=nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestSearchUsesCache(t *testing.T) {
	f := newFixture(t, true)
	first := f.do(t, http.MethodGet, "/api/v1/search?q=old")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))

	second := f.do(t, http.MethodGet, "/api/v1/search?q=old")
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	stats := f.do(t, http.MethodGet, "/api/v1/cache/stats")
	assert.Contains(t, stats.Body.String(), `"hits":1`)

	inv := f.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusOK, inv.Code)
}

func TestStatsReloadAndDoc(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/stats")
	var stats StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, StatsResponse{NumDocs: 2, NumSegments: 1, Opstamp: 1, Fields: []string{"title", "body"}}, stats)

	w, err := f.idx.Writer(0, 0)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(document.New().AddText("title", "Frankenstein")))
	_, err = w.Commit()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec = f.do(t, http.MethodPost, "/api/v1/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"opstamp":2}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/docs/1/0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":["Frankenstein"]}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/docs/9/0").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/docs/x/0").Code)
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/cache/invalidate").Code)
	assert.JSONEq(t, `{"status":"disabled"}`, f.do(t, http.MethodGet, "/api/v1/cache/stats").Body.String())
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health").Code)
}
