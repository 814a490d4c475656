// Package searcher exposes search over one immutable reader snapshot.
package searcher

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/reader"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/ranker"
)

// Hit is one ranked result.
type Hit struct {
	Score   float64           `json:"score"`
	Address reader.DocAddress `json:"address"`
}

// Searcher is bound to one snapshot. Commits and reloads after its
// creation are not visible through it. It is safe for concurrent use.
type Searcher struct {
	snap *reader.Snapshot
	exec *executor.Executor
}

// New binds a searcher to snap. A nil scorer selects BM25.
func New(snap *reader.Snapshot, scorer ranker.Scorer) *Searcher {
	return &Searcher{snap: snap, exec: executor.New(scorer)}
}

func (s *Searcher) NumDocs() uint64 { return s.snap.NumDocs() }

func (s *Searcher) NumSegments() int { return s.snap.NumSegments() }

func (s *Searcher) Opstamp() uint64 { return s.snap.Opstamp }

func (s *Searcher) Schema() *schema.Schema { return s.snap.Schema }

func (s *Searcher) Snapshot() *reader.Snapshot { return s.snap }

// Search returns up to limit hits, best first. Ties are broken by
// segment ordinal and then local doc id.
func (s *Searcher) Search(ctx context.Context, q *query.Parsed, limit int) ([]Hit, error) {
	res, err := s.Execute(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(res.Results))
	for i, r := range res.Results {
		hits[i] = Hit{Score: r.Score, Address: reader.DocAddress{Segment: r.Segment, Doc: r.Doc}}
	}
	return hits, nil
}

// Execute is Search with the total hit count and term statistics.
func (s *Searcher) Execute(ctx context.Context, q *query.Parsed, limit int) (*executor.SearchResult, error) {
	if q == nil || q.Root == nil {
		return nil, fmt.Errorf("searching: nil query")
	}
	res, err := s.exec.Execute(ctx, s.snap, q.Root, limit)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q.Raw, err)
	}
	res.Query = q.Raw
	return res, nil
}

// Count returns the number of matching live documents.
func (s *Searcher) Count(ctx context.Context, q *query.Parsed) (uint64, error) {
	if q == nil || q.Root == nil {
		return 0, fmt.Errorf("counting: nil query")
	}
	return s.exec.Count(ctx, s.snap, q.Root)
}

// Doc returns the stored fields of the document at addr.
func (s *Searcher) Doc(addr reader.DocAddress) (*document.Document, error) {
	return s.snap.Doc(addr)
}

func (s *Searcher) String() string {
	return fmt.Sprintf("Searcher(num_docs=%d, num_segments=%d)", s.NumDocs(), s.NumSegments())
}
