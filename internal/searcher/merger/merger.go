// Package merger selects the global top-K from per-segment results.
// Order is score descending, then segment ordinal, then local doc id.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/ranker"
)

const DefaultLimit = 10

// Merge returns the best limit documents over all segment results.
func Merge(segmentResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	top := NewTopK(limit)
	for _, results := range segmentResults {
		for _, doc := range results {
			top.Offer(doc)
		}
	}
	return top.Results()
}

// TopK is a bounded collector that keeps the best documents seen.
type TopK struct {
	limit int
	h     scoredDocHeap
}

// NewTopK collects at most limit documents; limit <= 0 means
// DefaultLimit.
func NewTopK(limit int) *TopK {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, limit+1)}
}

func (t *TopK) Offer(doc ranker.ScoredDoc) {
	if t.h.Len() == t.limit && !better(doc, t.h[0]) {
		return
	}
	heap.Push(&t.h, doc)
	if t.h.Len() > t.limit {
		heap.Pop(&t.h)
	}
}

func (t *TopK) Len() int { return t.h.Len() }

// Results drains the collector, best document first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

func better(a, c ranker.ScoredDoc) bool {
	if a.Score != c.Score {
		return a.Score > c.Score
	}
	if a.Segment != c.Segment {
		return a.Segment < c.Segment
	}
	return a.Doc < c.Doc
}

// scoredDocHeap keeps the worst document at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
