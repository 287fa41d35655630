package search

import (
	"context"
	"database/sql"
	"io"
	"math"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

type fakeStore struct {
	memories []types.Memory
	snapshot time.Time
	cache    map[string]store.CachedSearch
	puts     int
}

func (f *fakeStore) InsertMemory(_ context.Context, mem types.Memory) (types.Memory, error) {
	f.memories = append(f.memories, mem)
	return mem, nil
}

func (f *fakeStore) GetMemory(context.Context, string) (types.Memory, error) {
	return types.Memory{}, sql.ErrNoRows
}

func (f *fakeStore) ListMemories(context.Context, string) ([]types.Memory, error) {
	return f.memories, nil
}

func (f *fakeStore) FindByCanonicalURL(context.Context, string, string) (types.Memory, error) {
	return types.Memory{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteMemory(context.Context, string) error { return nil }

func (f *fakeStore) SnapshotAt(context.Context, string) (time.Time, error) {
	return f.snapshot, nil
}

func (f *fakeStore) CachedSearch(_ context.Context, _, query string) (store.CachedSearch, error) {
	row, ok := f.cache[query]
	if !ok {
		return store.CachedSearch{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeStore) PutCachedSearch(_ context.Context, row store.CachedSearch) error {
	if f.cache == nil {
		f.cache = map[string]store.CachedSearch{}
	}
	f.cache[row.NormalizedQuery] = row
	f.puts++
	return nil
}

func (f *fakeStore) PruneSearches(context.Context, string, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) Stats(context.Context, string) (store.Stats, error) { return store.Stats{}, nil }

func (f *fakeStore) Close() error { return nil }

type fakeAI struct {
	queryEmbedding []float32
	answer         ai.Answer
	answerErr      error
	answerCalls    int
	embedCalls     int
}

func (f *fakeAI) Summarize(context.Context, string, string) (string, error) { return "", nil }

func (f *fakeAI) Embed(context.Context, string) ([]float32, error) {
	f.embedCalls++
	return f.queryEmbedding, nil
}

func (f *fakeAI) RankURLs(context.Context, []types.HistoryEntry) ([]string, error) { return nil, nil }

func (f *fakeAI) Answer(context.Context, string, []types.RankedMemory) (ai.Answer, error) {
	f.answerCalls++
	return f.answer, f.answerErr
}

func memWithSim(id string, x float64, createdAt time.Time) types.Memory {
	// A unit vector {x, sqrt(1-x^2)} has cosine similarity exactly x
	// against the query embedding {1, 0}.
	y := math.Sqrt(1 - x*x)
	return types.Memory{
		ID:        id,
		URL:       "https://" + id + ".example.com/post",
		Title:     "Article " + id,
		Summary:   "summary " + id,
		Embedding: []float32{float32(x), float32(y)},
		CreatedAt: createdAt,
	}
}

func newTestEngine(st store.Store, aiClient ai.Client, online bool) *Engine {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return NewEngine(st, aiClient, config.Default().Search, logger, func(context.Context) bool { return online })
}

func TestEngine_Offline(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	fa := &fakeAI{}
	eng := newTestEngine(st, fa, false)

	resp, err := eng.Search(context.Background(), "local", "anything")
	require.NoError(t, err)
	assert.Equal(t, "Please check your internet connection.", resp.Answer)
	assert.False(t, resp.UsedAI)
	assert.Zero(t, fa.embedCalls, "offline search must not call the model")
	assert.Zero(t, st.puts, "offline responses are not cached")
}

func TestEngine_NoResults(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	fa := &fakeAI{queryEmbedding: []float32{1, 0}}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "anything at all")
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceLow, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.False(t, resp.UsedAI)
}

func TestEngine_WeakMatch(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := &fakeStore{memories: []types.Memory{memWithSim("weak", 0.38, now)}}
	fa := &fakeAI{queryEmbedding: []float32{1, 0}}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "fermentation chemistry")
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceLow, resp.Confidence)
	assert.Contains(t, resp.Answer, `"fermentation chemistry"`)
	assert.False(t, resp.UsedAI)
	assert.Len(t, resp.Sources, 1)
	assert.Zero(t, fa.answerCalls, "weak matches never reach answer generation")
}

func TestEngine_RecallOnlyForStrongNavigational(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := &fakeStore{memories: []types.Memory{memWithSim("strong", 0.99, now)}}
	fa := &fakeAI{queryEmbedding: []float32{1, 0}}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "find the article strong")
	require.NoError(t, err)
	assert.Equal(t, "Here's what I found in your saved articles:", resp.Answer)
	assert.False(t, resp.UsedAI)
	assert.Equal(t, types.ConfidenceHigh, resp.Confidence)
	assert.Zero(t, fa.answerCalls)
}

func TestEngine_GeneratedAnswerKeepsOnlyCitedSources(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := &fakeStore{memories: []types.Memory{
		memWithSim("first", 0.85, now),
		memWithSim("second", 0.6, now),
		memWithSim("third", 0.5, now),
	}}
	fa := &fakeAI{
		queryEmbedding: []float32{1, 0},
		answer:         ai.Answer{Text: "It works like this [1][3].", SourceIndices: []int{0, 2}},
	}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "how does it work?")
	require.NoError(t, err)
	assert.True(t, resp.UsedAI)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "first", resp.Sources[0].ID)
	assert.Equal(t, "third", resp.Sources[1].ID)
	assert.Equal(t, 1, fa.answerCalls)
}

func TestEngine_UncitedAnswerFallsBackToRecall(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := &fakeStore{memories: []types.Memory{memWithSim("only", 0.8, now)}}
	fa := &fakeAI{
		queryEmbedding: []float32{1, 0},
		answer:         ai.Answer{Text: ai.FallbackAnswer},
	}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "what did the author argue?")
	require.NoError(t, err)
	assert.False(t, resp.UsedAI, "uncited answers degrade to recall-only")
	assert.Equal(t, "Here's what I found in your saved articles:", resp.Answer)
	require.Len(t, resp.Sources, 1)
}

func TestEngine_AmbiguityForcesGeneration(t *testing.T) {
	t.Parallel()

	now := time.Now()
	// Three close matches above the default gate: intent alone would
	// skip generation, ambiguity must override.
	st := &fakeStore{memories: []types.Memory{
		memWithSim("a", 0.80, now),
		memWithSim("b", 0.79, now),
		memWithSim("c", 0.78, now),
	}}
	fa := &fakeAI{
		queryEmbedding: []float32{1, 0},
		answer:         ai.Answer{Text: "Covered across several notes [1][2].", SourceIndices: []int{0, 1}},
	}
	eng := newTestEngine(st, fa, true)

	resp, err := eng.Search(context.Background(), "local", "goroutine leaks")
	require.NoError(t, err)
	assert.True(t, resp.UsedAI)
	assert.Equal(t, 1, fa.answerCalls)
}

func TestEngine_CacheHitAndInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Now()
	st := &fakeStore{
		memories: []types.Memory{memWithSim("strong", 0.99, now)},
		snapshot: now,
	}
	fa := &fakeAI{queryEmbedding: []float32{1, 0}}
	eng := newTestEngine(st, fa, true)

	first, err := eng.Search(ctx, "local", "Find The Article Strong")
	require.NoError(t, err)
	require.Equal(t, 1, st.puts)
	require.Equal(t, 1, fa.embedCalls)

	// Same query, different casing and spacing: served from cache.
	second, err := eng.Search(ctx, "local", "  find the   article strong ")
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, 1, fa.embedCalls, "cache hit must not re-embed")

	// A new memory moves the snapshot and invalidates the cached row.
	st.snapshot = now.Add(time.Minute)
	_, err = eng.Search(ctx, "local", "find the article strong")
	require.NoError(t, err)
	assert.Equal(t, 2, fa.embedCalls, "stale cache must trigger a fresh search")
	assert.Equal(t, 2, st.puts)
}
