// Package executor evaluates query trees against reader snapshots.
// Segments are evaluated in parallel with roaring bitmap set algebra and
// the per-segment hits are merged into a global top-K.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/reader"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
)

// SearchResult is the ranked outcome of one query.
type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits uint64             `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]uint64  `json:"term_stats,omitempty"`
}

type Executor struct {
	scorer ranker.Scorer
	logger *slog.Logger
}

func New(scorer ranker.Scorer) *Executor {
	if scorer == nil {
		scorer = ranker.BM25{}
	}
	return &Executor{
		scorer: scorer,
		logger: slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Scorer() ranker.Scorer { return e.scorer }

// Execute returns the top limit documents of snap matching q.
func (e *Executor) Execute(ctx context.Context, snap *reader.Snapshot, q query.Query, limit int) (*SearchResult, error) {
	start := time.Now()
	stats := collectStats(snap, q)
	perSegment := make([][]ranker.ScoredDoc, len(snap.Segments))
	totals := make([]uint64, len(snap.Segments))

	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range snap.Segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := &evaluator{seg: seg, scorer: e.scorer, stats: stats, scoring: true}
			m, err := ev.eval(q)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.ID, err)
			}
			totals[i] = m.docs.GetCardinality()
			top := merger.NewTopK(limit)
			it := m.docs.Iterator()
			for it.HasNext() {
				doc := it.Next()
				top.Offer(ranker.ScoredDoc{Segment: seg.Ord, Doc: doc, Score: m.scores[doc]})
			}
			perSegment[i] = top.Results()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total uint64
	for _, n := range totals {
		total += n
	}
	termStats := make(map[string]uint64, len(stats))
	for key, st := range stats {
		if t, err := term.FromKey([]byte(key)); err == nil {
			termStats[t.String()] = st.DocFreq
		}
	}
	result := &SearchResult{
		Query:     q.String(),
		TotalHits: total,
		Results:   merger.Merge(perSegment, limit),
		TermStats: termStats,
	}
	e.logger.Debug("query executed",
		"query", result.Query,
		"segments", len(snap.Segments),
		"candidates", total,
		"results", len(result.Results),
		"duration", time.Since(start),
	)
	return result, nil
}

// Count returns the number of live documents matching q without scoring.
func (e *Executor) Count(ctx context.Context, snap *reader.Snapshot, q query.Query) (uint64, error) {
	totals := make([]uint64, len(snap.Segments))
	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range snap.Segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := &evaluator{seg: seg, scorer: e.scorer}
			m, err := ev.eval(q)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.ID, err)
			}
			totals[i] = m.docs.GetCardinality()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total uint64
	for _, n := range totals {
		total += n
	}
	return total, nil
}

// collectStats computes snapshot-wide statistics for every term of q so
// that all segments score against the same numbers.
func collectStats(snap *reader.Snapshot, q query.Query) map[string]ranker.TermStats {
	stats := make(map[string]ranker.TermStats)
	totalDocs := snap.MaxDocs()
	avg := make(map[uint32]float64)
	for _, t := range query.Terms(q) {
		key := t.Key()
		if _, ok := stats[string(key)]; ok {
			continue
		}
		a, ok := avg[uint32(t.Field)]
		if !ok {
			a = snap.AvgFieldNorm(t.Field)
			avg[uint32(t.Field)] = a
		}
		stats[string(key)] = ranker.TermStats{
			TotalDocs:    totalDocs,
			DocFreq:      snap.DocFreq(key),
			AvgFieldNorm: a,
		}
	}
	return stats
}

// match is the set of documents matched by a node in one segment and
// their scores. scores is nil when scoring is off.
type match struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func emptyMatch() *match { return &match{docs: roaring.New()} }

type evaluator struct {
	seg     *reader.SegmentSnapshot
	scorer  ranker.Scorer
	stats   map[string]ranker.TermStats
	scoring bool
}

func (ev *evaluator) eval(q query.Query) (*match, error) {
	m, err := ev.node(q)
	if err != nil {
		return nil, err
	}
	if ev.seg.Deleted != nil && !ev.seg.Deleted.IsEmpty() {
		m.docs.AndNot(ev.seg.Deleted)
	}
	return m, nil
}

func (ev *evaluator) node(q query.Query) (*match, error) {
	switch q := q.(type) {
	case query.TermQuery:
		return ev.term(q.Term)
	case query.PhraseQuery:
		return ev.phrase(q)
	case *query.BooleanQuery:
		return ev.boolean(q)
	case query.AllQuery:
		m := &match{docs: roaring.New()}
		m.docs.AddRange(0, uint64(ev.seg.Reader.NumDocs()))
		if ev.scoring {
			m.scores = make(map[uint32]float64, m.docs.GetCardinality())
			it := m.docs.Iterator()
			for it.HasNext() {
				m.scores[it.Next()] = 1
			}
		}
		return m, nil
	case query.EmptyQuery, nil:
		return emptyMatch(), nil
	}
	return nil, fmt.Errorf("unsupported query node %T", q)
}

func (ev *evaluator) term(t term.Term) (*match, error) {
	key := t.Key()
	postings, err := ev.seg.Reader.Postings(key)
	if err != nil {
		return nil, err
	}
	m := emptyMatch()
	if ev.scoring {
		m.scores = make(map[uint32]float64, len(postings))
	}
	stats := ev.stats[string(key)]
	for _, p := range postings {
		m.docs.Add(p.DocID)
		if ev.scoring {
			norm := ev.seg.Reader.FieldNorm(t.Field, p.DocID)
			m.scores[p.DocID] = ev.scorer.Score(stats, p.Frequency, norm)
		}
	}
	return m, nil
}

// phrase matches documents where the terms occur at consecutive
// positions. The phrase frequency stands in for the term frequency of
// every term when scoring.
func (ev *evaluator) phrase(q query.PhraseQuery) (*match, error) {
	m := emptyMatch()
	if len(q.Terms) == 0 {
		return m, nil
	}
	positions := make([]map[uint32][]uint32, len(q.Terms))
	var candidates *roaring.Bitmap
	for i, t := range q.Terms {
		postings, err := ev.seg.Reader.Postings(t.Key())
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			return m, nil
		}
		docs := roaring.New()
		positions[i] = make(map[uint32][]uint32, len(postings))
		for _, p := range postings {
			docs.Add(p.DocID)
			positions[i][p.DocID] = p.Positions
		}
		if candidates == nil {
			candidates = docs
		} else {
			candidates.And(docs)
		}
	}
	if ev.scoring {
		m.scores = make(map[uint32]float64)
	}
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		freq := phraseFreq(positions, doc)
		if freq == 0 {
			continue
		}
		m.docs.Add(doc)
		if ev.scoring {
			norm := ev.seg.Reader.FieldNorm(q.Field, doc)
			var score float64
			for _, t := range q.Terms {
				score += ev.scorer.Score(ev.stats[string(t.Key())], freq, norm)
			}
			m.scores[doc] = score
		}
	}
	return m, nil
}

func phraseFreq(positions []map[uint32][]uint32, doc uint32) uint32 {
	sets := make([]map[uint32]struct{}, len(positions))
	for i := 1; i < len(positions); i++ {
		sets[i] = make(map[uint32]struct{}, len(positions[i][doc]))
		for _, p := range positions[i][doc] {
			sets[i][p] = struct{}{}
		}
	}
	var freq uint32
outer:
	for _, start := range positions[0][doc] {
		for i := 1; i < len(positions); i++ {
			if _, ok := sets[i][start+uint32(i)]; !ok {
				continue outer
			}
		}
		freq++
	}
	return freq
}

// boolean combines clauses: Must clauses intersect, Should clauses union
// when there is no Must and only add score otherwise, MustNot clauses
// subtract. A query of only MustNot clauses matches nothing.
func (ev *evaluator) boolean(q *query.BooleanQuery) (*match, error) {
	var musts, shoulds []*match
	excluded := roaring.New()
	for _, c := range q.Clauses {
		child, err := ev.node(c.Query)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.Must:
			musts = append(musts, child)
		case query.Should:
			shoulds = append(shoulds, child)
		case query.MustNot:
			excluded.Or(child.docs)
		}
	}

	m := emptyMatch()
	switch {
	case len(musts) > 0:
		m.docs = musts[0].docs.Clone()
		for _, other := range musts[1:] {
			m.docs.And(other.docs)
		}
	case len(shoulds) > 0:
		for _, other := range shoulds {
			m.docs.Or(other.docs)
		}
	default:
		return m, nil
	}
	m.docs.AndNot(excluded)

	if ev.scoring {
		m.scores = make(map[uint32]float64, m.docs.GetCardinality())
		it := m.docs.Iterator()
		for it.HasNext() {
			doc := it.Next()
			var score float64
			for _, c := range musts {
				score += c.scores[doc]
			}
			for _, c := range shoulds {
				score += c.scores[doc]
			}
			m.scores[doc] = score
		}
	}
	return m, nil
}
