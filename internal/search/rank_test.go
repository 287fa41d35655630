package search

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector must not divide by zero")
}

func TestRank(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Search
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	query := []float32{1, 0, 0}

	memories := []types.Memory{
		{ID: "strong-old", Embedding: []float32{1, 0.05, 0}, CreatedAt: now.Add(-90 * 24 * time.Hour)},
		{ID: "strong-new", Embedding: []float32{1, 0.05, 0}, CreatedAt: now.Add(-1 * 24 * time.Hour)},
		{ID: "below-floor", Embedding: []float32{0.1, 1, 0}, CreatedAt: now},
		{ID: "no-embedding", CreatedAt: now},
		{ID: "wrong-dim", Embedding: []float32{1, 0}, CreatedAt: now},
	}

	ranked := Rank(memories, query, now, cfg)

	assert.Len(t, ranked, 2, "floor, nil-embedding and dim-mismatch entries are skipped")
	assert.Equal(t, "strong-new", ranked[0].ID, "equal similarity breaks toward recency")
	assert.Equal(t, "strong-old", ranked[1].ID)
	assert.Greater(t, ranked[0].FinalScore, ranked[1].FinalScore)
	assert.InDelta(t, ranked[0].Similarity, ranked[1].Similarity, 1e-9)

	// Recency decays exponentially with the configured half-life scale.
	wantRecency := math.Exp(-1.0 / cfg.RecencyDecayDays)
	assert.InDelta(t, wantRecency, ranked[0].RecencyScore, 1e-9)
}

func TestRank_TopKCap(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Search
	cfg.TopK = 3
	now := time.Now()

	memories := make([]types.Memory, 10)
	for i := range memories {
		memories[i] = types.Memory{
			ID:        string(rune('a' + i)),
			Embedding: []float32{1, 0},
			CreatedAt: now,
		}
	}

	ranked := Rank(memories, []float32{1, 0}, now, cfg)
	assert.Len(t, ranked, 3)
}

func TestTitleSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, titleSimilarity("Understanding Goroutine Leaks", "understanding goroutine leaks"))
	assert.Zero(t, titleSimilarity("Understanding Goroutine Leaks", "Baking Sourdough Bread"))
	assert.Zero(t, titleSimilarity("a b c", "d e f"), "short words do not count")

	// Partial overlap lands strictly between 0 and 1.
	partial := titleSimilarity("Understanding Goroutine Leaks Deeply", "Understanding Channel Leaks Deeply")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	results := []types.RankedMemory{
		{Memory: types.Memory{ID: "1", URL: "https://blog.example.com/a", Title: "Understanding Goroutine Leaks"}, Similarity: 0.9},
		{Memory: types.Memory{ID: "2", URL: "https://blog.example.com/a?p=2", Title: "Understanding Goroutine Leaks"}, Similarity: 0.85},
		{Memory: types.Memory{ID: "3", URL: "https://other.example.org/a", Title: "Understanding Goroutine Leaks"}, Similarity: 0.8},
		{Memory: types.Memory{ID: "4", URL: "https://blog.example.com/b", Title: "Completely Different Subject Here"}, Similarity: 0.7},
	}

	deduped := Dedupe(results, 0.8)

	ids := make([]string, len(deduped))
	for i, r := range deduped {
		ids[i] = r.ID
	}
	// The near-identical copy on the same host is dropped; the same
	// title on another host and a different title on the same host stay.
	assert.Equal(t, []string{"1", "3", "4"}, ids)
}
