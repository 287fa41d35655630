package search

import (
	"net/url"
	"strings"

	"github.com/xiy/webrecall/pkg/types"
)

// titleSimilarity is Jaccard overlap of meaningful title words (longer
// than 3 characters, lowercased).
func titleSimilarity(a, b string) float64 {
	wordsA := titleWords(a)
	wordsB := titleWords(b)

	var intersection, union int
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union = len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func titleWords(title string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) > 3 {
			words[w] = struct{}{}
		}
	}
	return words
}

// Dedupe drops results that look like the same article saved twice:
// same hostname and near-identical titles. Order is preserved, so the
// best-scoring copy survives.
func Dedupe(results []types.RankedMemory, titleOverlap float64) []types.RankedMemory {
	kept := make([]types.RankedMemory, 0, len(results))

	for _, candidate := range results {
		duplicate := false
		for _, existing := range kept {
			candHost := hostname(candidate.URL)
			if candHost == "" || candHost != hostname(existing.URL) {
				continue
			}
			if titleSimilarity(candidate.Title, existing.Title) > titleOverlap {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
