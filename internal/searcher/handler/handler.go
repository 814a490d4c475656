// Package handler serves the HTTP search API over one index.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/reader"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

// Index is the part of an index the handler needs.
type Index interface {
	Schema() *schema.Schema
	Searcher() *searcher.Searcher
	ParseQuery(text string, defaultFields ...string) (*query.Parsed, error)
	Reload(ctx context.Context) error
}

// Hit is one search result with its stored fields.
type Hit struct {
	Score   float64           `json:"score"`
	Address reader.DocAddress `json:"address"`
	Doc     map[string][]any  `json:"doc,omitempty"`
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query     string            `json:"query"`
	Parsed    string            `json:"parsed"`
	Opstamp   uint64            `json:"opstamp"`
	TotalHits uint64            `json:"total_hits"`
	Hits      []Hit             `json:"hits"`
	TermStats map[string]uint64 `json:"term_stats,omitempty"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	NumDocs     uint64   `json:"num_docs"`
	NumSegments int      `json:"num_segments"`
	Opstamp     uint64   `json:"opstamp"`
	Fields      []string `json:"fields"`
}

type Handler struct {
	index        Index
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a handler. queryCache may be nil to disable caching.
func New(index Index, queryCache *cache.QueryCache, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	if m == nil {
		m = metrics.Default()
	}
	return &Handler{
		index:        index,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/docs/{segment}/{doc}", h.Doc)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Search parses q against the optional comma-separated fields and
// returns the top limit hits of the current snapshot.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	text := r.URL.Query().Get("q")
	if strings.TrimSpace(text) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	parsed, err := h.index.ParseQuery(text, fields...)
	if err != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	s := h.index.Searcher()
	compute := func() ([]byte, error) {
		resp, err := h.execute(ctx, s, parsed, limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}

	var body []byte
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		key := cache.Key{Query: text, Fields: fields, Limit: limit, Opstamp: s.Opstamp()}
		body, hit, err = h.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		body, err = compute()
	}
	if err != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		log.Error("search failed", "query", text, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	latency := time.Since(start)
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	log.Info("search completed",
		"query", text,
		"opstamp", s.Opstamp(),
		"cache", cacheStatus,
		"latency", latency,
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) execute(ctx context.Context, s *searcher.Searcher, parsed *query.Parsed, limit int) (*SearchResponse, error) {
	res, err := s.Execute(ctx, parsed, limit)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{
		Query:     parsed.Raw,
		Parsed:    parsed.String(),
		Opstamp:   s.Opstamp(),
		TotalHits: res.TotalHits,
		Hits:      make([]Hit, 0, len(res.Results)),
		TermStats: res.TermStats,
	}
	for _, r := range res.Results {
		addr := reader.DocAddress{Segment: r.Segment, Doc: r.Doc}
		doc, err := s.Doc(addr)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", addr, err)
		}
		resp.Hits = append(resp.Hits, Hit{Score: r.Score, Address: addr, Doc: doc.ToMap()})
	}
	resultType := "hit"
	if res.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchResultsCount.Observe(float64(len(resp.Hits)))
	return resp, nil
}

// Stats describes the current snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.index.Searcher()
	resp := StatsResponse{
		NumDocs:     s.NumDocs(),
		NumSegments: s.NumSegments(),
		Opstamp:     s.Opstamp(),
	}
	for _, e := range h.index.Schema().Fields() {
		resp.Fields = append(resp.Fields, e.Name)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Reload makes the latest commit visible.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Reload(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("reload failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "reload failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]uint64{"opstamp": h.index.Searcher().Opstamp()})
}

// Doc returns the stored fields at an address of the current snapshot.
func (h *Handler) Doc(w http.ResponseWriter, r *http.Request) {
	seg, err1 := strconv.Atoi(r.PathValue("segment"))
	doc, err2 := strconv.ParseUint(r.PathValue("doc"), 10, 32)
	if err1 != nil || err2 != nil {
		h.writeError(w, http.StatusBadRequest, "address must be /{segment}/{doc}")
		return
	}
	d, err := h.index.Searcher().Doc(reader.DocAddress{Segment: seg, Doc: uint32(doc)})
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, d.ToMap())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
