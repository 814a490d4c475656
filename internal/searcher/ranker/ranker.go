package ranker

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is a matching document addressed by segment ordinal and
// local doc id.
type ScoredDoc struct {
	Segment int     `json:"segment"`
	Doc     uint32  `json:"doc"`
	Score   float64 `json:"score"`
}

// TermStats are the snapshot-wide statistics of one term.
type TermStats struct {
	TotalDocs    uint64
	DocFreq      uint64
	AvgFieldNorm float64
}

// Scorer computes the contribution of one term to a document's score.
// Scores must not decrease as termFreq grows.
type Scorer interface {
	Name() string
	Score(stats TermStats, termFreq uint32, fieldNorm uint32) float64
}

// BM25 is Okapi BM25 with per-field length normalisation.
type BM25 struct{}

func (BM25) Name() string { return "bm25" }

func (BM25) Score(stats TermStats, termFreq uint32, fieldNorm uint32) float64 {
	idf := computeIDF(stats.TotalDocs, stats.DocFreq)
	return idf * computeTFNorm(float64(termFreq), float64(fieldNorm), stats.AvgFieldNorm)
}

// TermFrequency scores by raw occurrence count.
type TermFrequency struct{}

func (TermFrequency) Name() string { return "tf" }

func (TermFrequency) Score(_ TermStats, termFreq uint32, _ uint32) float64 {
	return float64(termFreq)
}

// Get returns the scorer registered under name. An empty name selects
// BM25.
func Get(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", "bm25":
		return BM25{}, nil
	case "tf", "termfrequency":
		return TermFrequency{}, nil
	}
	return nil, fmt.Errorf("%w: unknown scorer %q", apperrors.ErrInvalidArgument, name)
}

func computeIDF(totalDocs uint64, docFreq uint64) float64 {
	if docFreq > totalDocs {
		docFreq = totalDocs
	}
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// computeTFNorm treats a field without length statistics as average
// length.
func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
