package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

// Canned answers for the paths that never reach the model.
const (
	answerOffline    = "Please check your internet connection."
	answerNoResults  = "I couldn't find any relevant articles. Try saving more content to build your memory!"
	answerRecallOnly = "Here's what I found in your saved articles:"
)

func answerWeakMatch(query string) string {
	return fmt.Sprintf("I found some loosely related articles, but I'm not very confident they match %q. Consider saving more specific content about this topic.", query)
}

// Engine answers queries over a user's saved memories. Results are
// cached per normalized query and invalidated when a newer memory
// appears.
type Engine struct {
	store  store.Store
	ai     ai.Client
	cfg    config.SearchConfig
	logger *log.Logger

	online func(ctx context.Context) bool
	now    func() time.Time
}

// NewEngine wires the search engine. online reports connectivity; pass
// nil to always assume online.
func NewEngine(st store.Store, aiClient ai.Client, cfg config.SearchConfig, logger *log.Logger, online func(ctx context.Context) bool) *Engine {
	if online == nil {
		online = func(context.Context) bool { return true }
	}
	return &Engine{
		store:  st,
		ai:     aiClient,
		cfg:    cfg,
		logger: logger,
		online: online,
		now:    time.Now,
	}
}

// Search answers a query, consulting the cache first. Cached responses
// are reused only while the user's memory set is unchanged.
func (e *Engine) Search(ctx context.Context, userID, query string) (types.SearchResponse, error) {
	normalized := NormalizeQuery(query)

	snapshot, err := e.store.SnapshotAt(ctx, userID)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("memory snapshot: %w", err)
	}

	cached, err := e.store.CachedSearch(ctx, userID, normalized)
	if err == nil && cached.SnapshotAt.Equal(snapshot) {
		var resp types.SearchResponse
		if jsonErr := json.Unmarshal([]byte(cached.ResponseJSON), &resp); jsonErr == nil {
			e.logger.Debug("search cache hit", "query", normalized)
			return resp, nil
		}
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.SearchResponse{}, fmt.Errorf("search cache lookup: %w", err)
	}

	resp, err := e.search(ctx, userID, query)
	if err != nil {
		return types.SearchResponse{}, err
	}

	// Offline responses carry no confidence and are not worth caching.
	if resp.Confidence != "" {
		payload, jsonErr := json.Marshal(resp)
		if jsonErr == nil {
			if putErr := e.store.PutCachedSearch(ctx, store.CachedSearch{
				UserID:          userID,
				NormalizedQuery: normalized,
				ResponseJSON:    string(payload),
				SnapshotAt:      snapshot,
				CreatedAt:       e.now(),
			}); putErr != nil {
				e.logger.Warn("failed to cache search result", "error", putErr)
			}
		}
	}

	return resp, nil
}

func (e *Engine) search(ctx context.Context, userID, query string) (types.SearchResponse, error) {
	if !e.online(ctx) {
		return types.SearchResponse{Answer: answerOffline}, nil
	}

	queryEmbedding, err := e.ai.Embed(ctx, query)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("embed query: %w", err)
	}

	memories, err := e.store.ListMemories(ctx, userID)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("load memories: %w", err)
	}

	ranked := Rank(memories, queryEmbedding, e.now(), e.cfg)
	if len(ranked) == 0 {
		return types.SearchResponse{
			Answer:     answerNoResults,
			Sources:    []types.SearchSource{},
			Confidence: types.ConfidenceLow,
		}, nil
	}

	deduped := Dedupe(ranked, e.cfg.TitleOverlap)
	top := deduped[0]

	if top.Similarity < e.cfg.WeakMatch {
		return types.SearchResponse{
			Answer:     answerWeakMatch(query),
			Sources:    formatSources(deduped, 3),
			Confidence: types.ConfidenceLow,
		}, nil
	}

	intent := AnalyzeIntent(query, top, deduped, e.cfg)

	// Several near-equal matches mean the top result alone is not a
	// trustworthy answer, regardless of intent.
	ambiguous := false
	if len(deduped) >= 3 {
		dominance := top.Similarity - deduped[1].Similarity
		ambiguous = dominance < e.cfg.AmbiguityGap
	}

	if !intent.NeedsAI && !ambiguous {
		return recallOnlyResponse(deduped, e.cfg.MaxResults), nil
	}

	sources := deduped
	if len(sources) > e.cfg.MaxAISources {
		sources = sources[:e.cfg.MaxAISources]
	}

	answer, err := e.ai.Answer(ctx, query, sources)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("generate answer: %w", err)
	}

	// An uncited answer is not grounded; fall back to plain recall.
	if len(answer.SourceIndices) == 0 {
		return recallOnlyResponse(deduped, e.cfg.MaxResults), nil
	}

	cited := make([]types.SearchSource, 0, len(answer.SourceIndices))
	for _, idx := range answer.SourceIndices {
		cited = append(cited, formatSource(sources[idx]))
	}

	e.logger.Info("search answered",
		"intent", intent.Type,
		"sources", len(cited),
		"top_similarity", top.Similarity,
	)
	return types.SearchResponse{
		Answer:     answer.Text,
		Sources:    cited,
		Confidence: intent.Confidence,
		UsedAI:     true,
	}, nil
}

// NormalizeQuery is the cache key form of a query: trimmed, lowercased,
// inner whitespace collapsed.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func recallOnlyResponse(deduped []types.RankedMemory, max int) types.SearchResponse {
	return types.SearchResponse{
		Answer:     answerRecallOnly,
		Sources:    formatSources(deduped, max),
		Confidence: types.ConfidenceHigh,
	}
}

func formatSources(results []types.RankedMemory, max int) []types.SearchSource {
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	out := make([]types.SearchSource, len(results))
	for i, r := range results {
		out[i] = formatSource(r)
	}
	return out
}

func formatSource(r types.RankedMemory) types.SearchSource {
	return types.SearchSource{
		ID:         r.ID,
		URL:        r.URL,
		Title:      r.Title,
		Summary:    r.Summary,
		Intent:     r.Intent,
		CreatedAt:  r.CreatedAt,
		Similarity: r.Similarity,
	}
}
