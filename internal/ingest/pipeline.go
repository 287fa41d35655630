// Package ingest turns a raw browser history export into saved
// memories: blocklist filtering, model-driven URL selection, bounded
// parallel fetching, and persistence with per-item error tolerance.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/fetch"
	"github.com/xiy/webrecall/internal/history"
	"github.com/xiy/webrecall/internal/memory"
	"github.com/xiy/webrecall/pkg/types"
)

// ErrOffline aborts a run before any network work starts.
var ErrOffline = errors.New("no internet connection")

// ProgressFunc observes pipeline progress. Implementations must be fast;
// the pipeline calls them inline.
type ProgressFunc func(types.ProcessingProgress)

// Pipeline is the history onboarding flow.
type Pipeline struct {
	cfg    config.IngestConfig
	memory *memory.Service
	ai     ai.Client
	pool   *fetch.Pool
	logger *log.Logger
	online func(ctx context.Context) bool
}

// NewPipeline wires the ingestion pipeline. online reports
// connectivity; pass nil to always assume online.
func NewPipeline(cfg config.IngestConfig, svc *memory.Service, aiClient ai.Client, pool *fetch.Pool, logger *log.Logger, online func(ctx context.Context) bool) *Pipeline {
	if online == nil {
		online = func(context.Context) bool { return true }
	}
	return &Pipeline{
		cfg:    cfg,
		memory: svc,
		ai:     aiClient,
		pool:   pool,
		logger: logger,
		online: online,
	}
}

// Process runs the full funnel over one history export. Individual page
// failures are logged and skipped; the run fails only on connectivity
// or selection errors.
func (p *Pipeline) Process(ctx context.Context, userID string, entries []types.HistoryEntry, progress ProgressFunc) (types.ProcessingResult, error) {
	if progress == nil {
		progress = func(types.ProcessingProgress) {}
	}

	stats := types.FunnelStats{TotalInput: len(entries)}
	fail := func(err error) (types.ProcessingResult, error) {
		progress(types.ProcessingProgress{Stage: types.StageError, Message: err.Error(), Stats: stats})
		return types.ProcessingResult{Stats: stats, Message: err.Error()}, err
	}

	progress(types.ProcessingProgress{Stage: types.StageFiltering, Message: "Filtering browsing history...", Percent: 10, Stats: stats})
	progress(types.ProcessingProgress{Stage: types.StageFiltering, Message: "Checking internet connection...", Percent: 15, Stats: stats})

	if !p.online(ctx) {
		return fail(ErrOffline)
	}

	progress(types.ProcessingProgress{Stage: types.StageFiltering, Message: "Applying filters...", Percent: 20, Stats: stats})

	filtered := history.Dedupe(history.ApplyBlocklist(entries))
	stats.AfterBlocklist = len(filtered)

	if len(filtered) == 0 {
		progress(types.ProcessingProgress{Stage: types.StageComplete, Message: "No processable history found", Percent: 100, Stats: stats})
		return types.ProcessingResult{Success: true, Stats: stats, Message: "No processable browsing history found."}, nil
	}

	stats.SentToRanker = len(filtered)
	if stats.SentToRanker > p.cfg.MaxURLsToRank {
		stats.SentToRanker = p.cfg.MaxURLsToRank
	}

	progress(types.ProcessingProgress{
		Stage:   types.StageAISelection,
		Message: fmt.Sprintf("Analyzing %d URLs...", stats.SentToRanker),
		Percent: 30,
		Stats:   stats,
	})

	selected, err := p.ai.RankURLs(ctx, filtered)
	if err != nil {
		return fail(fmt.Errorf("select quality urls: %w", err))
	}
	stats.Selected = len(selected)

	if len(selected) == 0 {
		progress(types.ProcessingProgress{Stage: types.StageComplete, Message: "No quality content found", Percent: 100, Stats: stats})
		return types.ProcessingResult{Success: true, Stats: stats, Message: "No quality content found in browsing history."}, nil
	}

	progress(types.ProcessingProgress{
		Stage:   types.StageAISelection,
		Message: fmt.Sprintf("Selected %d quality URLs", len(selected)),
		Percent: 40,
		Stats:   stats,
	})
	progress(types.ProcessingProgress{Stage: types.StageFetching, Message: "Fetching content from selected URLs...", Percent: 50, Stats: stats})

	entryByKey := make(map[string]types.HistoryEntry, len(filtered))
	for _, entry := range filtered {
		entryByKey[normalizeKey(entry.URL)] = entry
	}

	results := p.pool.FetchAll(ctx, selected, func(done, total int, url string) {
		progress(types.ProcessingProgress{
			Stage:      types.StageFetching,
			Message:    fmt.Sprintf("Fetching content (%d/%d)...", done, total),
			Percent:    50 + float64(done)/float64(total)*45, // fetching spans 50-95%
			CurrentURL: url,
			Stats:      stats,
		})
	})

	processed := make([]types.ProcessedEntry, 0, len(results))
	for _, res := range results {
		if !res.OK {
			continue
		}
		if len(res.Article.Content) < p.cfg.MinContentLength {
			p.logger.Debug("content too short; skipping", "url", res.URL, "chars", len(res.Article.Content))
			continue
		}

		entry := types.ProcessedEntry{
			URL:       res.URL,
			Title:     res.Article.Title,
			Content:   res.Article.Content,
			WordCount: res.Article.WordCount,
		}
		if orig, ok := entryByKey[normalizeKey(res.URL)]; ok {
			if orig.Title != "" {
				entry.Title = orig.Title
			}
			entry.VisitCount = orig.VisitCount
			entry.VisitTime = orig.VisitTime
		}
		processed = append(processed, entry)
	}
	stats.SuccessfullyFetched = len(processed)

	// Persist what was fetched. A page failing to save never fails the
	// batch.
	for _, entry := range processed {
		_, err := p.memory.Save(ctx, userID, memory.SaveInput{
			URL:        entry.URL,
			Title:      entry.Title,
			Content:    entry.Content,
			SourceType: types.SourceBrowserHistory,
			SaveType:   types.SaveTypeAuto,
		})
		if err != nil {
			var dup *memory.DuplicateError
			if errors.As(err, &dup) {
				p.logger.Debug("already saved; skipping", "url", entry.URL)
			} else {
				p.logger.Warn("failed saving page", "url", entry.URL, "error", err)
			}
			continue
		}
		stats.FinalCount++
	}

	message := completionMessage(stats.FinalCount, p.cfg.DesiredSelection)
	progress(types.ProcessingProgress{
		Stage:   types.StageComplete,
		Message: fmt.Sprintf("Successfully processed %d articles", stats.FinalCount),
		Percent: 100,
		Stats:   stats,
	})

	p.logger.Info("history ingestion complete",
		"input", stats.TotalInput,
		"after_blocklist", stats.AfterBlocklist,
		"selected", stats.Selected,
		"fetched", stats.SuccessfullyFetched,
		"saved", stats.FinalCount,
	)
	return types.ProcessingResult{Success: true, Stats: stats, Message: message}, nil
}

func completionMessage(saved, target int) string {
	switch {
	case saved == 0:
		return "Could not extract content from selected URLs."
	case saved < target:
		return fmt.Sprintf("Successfully processed %d articles.", saved)
	default:
		return fmt.Sprintf("Successfully processed %d high-quality articles.", saved)
	}
}

func normalizeKey(url string) string {
	return strings.TrimSuffix(strings.ToLower(url), "/")
}
