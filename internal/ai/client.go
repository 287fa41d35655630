// Package ai wraps the generative collaborators: summaries and
// embeddings for saved pages, history ranking during onboarding, and
// grounded answer generation for search.
package ai

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"github.com/xiy/webrecall/pkg/types"
)

// Answer is a generated answer plus the zero-based indices of the
// sources it cited.
type Answer struct {
	Text          string
	SourceIndices []int
}

// Client is the set of model operations the rest of the system depends
// on. Production uses OpenAIClient; tests substitute fakes.
type Client interface {
	Summarize(ctx context.Context, title, text string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	RankURLs(ctx context.Context, entries []types.HistoryEntry) ([]string, error)
	Answer(ctx context.Context, query string, sources []types.RankedMemory) (Answer, error)
}

var citationPattern = regexp.MustCompile(`\[?(\d+)\]?`)

// ExtractCitations pulls cited source numbers out of an answer and
// returns them as sorted, deduplicated zero-based indices. Numbers
// outside 1..numSources are ignored.
func ExtractCitations(answer string, numSources int) []int {
	seen := map[int]struct{}{}
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		idx := n - 1
		if idx < 0 || idx >= numSources {
			continue
		}
		seen[idx] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
