package ranker

import (
	"fmt"
	"testing"
)

func BenchmarkScore(b *testing.B) {
	for _, s := range []Scorer{BM25{}, TermFrequency{}} {
		for _, docFreq := range []uint64{10, 1000, 100000} {
			b.Run(fmt.Sprintf("%s/df_%d", s.Name(), docFreq), func(b *testing.B) {
				stats := TermStats{TotalDocs: 1_000_000, DocFreq: docFreq, AvgFieldNorm: 150}
				b.ReportAllocs()
				var sum float64
				for i := 0; i < b.N; i++ {
					sum += s.Score(stats, uint32(i%10)+1, uint32(100+i%100))
				}
				_ = sum
			})
		}
	}
}
