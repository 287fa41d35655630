// Package search implements retrieval over saved memories and the
// decision logic for when a generated answer is worth its cost.
package search

import (
	"math"
	"sort"
	"time"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

// CosineSimilarity computes cosine similarity between two vectors of
// equal length. A zero-magnitude vector yields 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Rank scores memories against the query embedding and returns the top
// K above the similarity floor, best first. Memories without an
// embedding or with a mismatched dimension are skipped.
func Rank(memories []types.Memory, queryEmbedding []float32, now time.Time, cfg config.SearchConfig) []types.RankedMemory {
	results := make([]types.RankedMemory, 0, len(memories))

	for _, mem := range memories {
		if len(mem.Embedding) == 0 || len(mem.Embedding) != len(queryEmbedding) {
			continue
		}

		similarity := CosineSimilarity(queryEmbedding, mem.Embedding)
		if similarity < cfg.MinSimilarity {
			continue
		}

		daysSince := now.Sub(mem.CreatedAt).Hours() / 24
		if daysSince < 0 {
			daysSince = 0
		}
		recency := math.Exp(-daysSince / cfg.RecencyDecayDays)

		results = append(results, types.RankedMemory{
			Memory:       mem,
			Similarity:   similarity,
			RecencyScore: recency,
			FinalScore:   similarity*cfg.SimilarityWeight + recency*cfg.RecencyWeight,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if cfg.TopK > 0 && len(results) > cfg.TopK {
		results = results[:cfg.TopK]
	}
	return results
}
