package search

import (
	"regexp"
	"strings"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

// QueryType classifies what the user is trying to do.
type QueryType string

const (
	QueryQuestion     QueryType = "question"
	QuerySynthesis    QueryType = "synthesis"
	QueryNavigational QueryType = "navigational"
	QueryGeneral      QueryType = "general"
)

// Intent is the outcome of query analysis: whether answer generation is
// needed and how confident the engine is about the match.
type Intent struct {
	Type       QueryType
	NeedsAI    bool
	Confidence types.Confidence
}

var questionWordPattern = regexp.MustCompile(`\b(who|what|when|where|why|how|which|whose)\b`)

var synthesisKeywords = []string{
	"compare",
	"comparison",
	"difference between",
	"vs",
	"versus",
	"pros and cons",
	"tradeoff",
	"tradeoffs",
	"summarize",
	"summary",
	"overview",
	"synthesize",
	"connect",
	"relationship between",
	"what did i learn",
	"tell me about",
	"explain",
}

var navigationalKeywords = []string{
	"find",
	"show me",
	"get",
	"open",
	"article about",
	"page about",
	"link to",
	"where is",
	"do i have",
}

// AnalyzeIntent decides whether the query needs a generated answer based
// on its phrasing and how well the top result already covers it.
// Question and synthesis queries lean toward generation; navigational
// and general queries skip it once the top match is strong enough.
func AnalyzeIntent(query string, top types.RankedMemory, deduped []types.RankedMemory, cfg config.SearchConfig) Intent {
	lower := strings.ToLower(strings.TrimSpace(query))

	hasQuestionWord := questionWordPattern.MatchString(lower)
	hasQuestionMark := strings.Contains(query, "?")
	hasSynthesis := containsAny(lower, synthesisKeywords)
	isNavigational := containsAny(lower, navigationalKeywords)

	// A direct question: only a near-perfect match that is not asking
	// for synthesis makes generation unnecessary.
	if hasQuestionWord || hasQuestionMark {
		skip := top.Similarity >= cfg.PerfectMatch && !hasSynthesis
		return Intent{
			Type:       QueryQuestion,
			NeedsAI:    !skip,
			Confidence: confidenceBySimilarity(top.Similarity, 0.75),
		}
	}

	// A synthesis request: generation is the point, unless a single
	// perfect match is all there is to synthesize.
	if hasSynthesis {
		skip := top.Similarity >= cfg.PerfectMatch && len(deduped) == 1
		conf := types.ConfidenceMedium
		if len(deduped) >= 2 {
			conf = types.ConfidenceHigh
		}
		return Intent{Type: QuerySynthesis, NeedsAI: !skip, Confidence: conf}
	}

	// Navigational: the user wants the article itself, so a decent
	// match makes generation redundant.
	if isNavigational {
		skip := top.Similarity >= cfg.Navigational
		return Intent{
			Type:       QueryNavigational,
			NeedsAI:    !skip,
			Confidence: confidenceBySimilarity(top.Similarity, 0.7),
		}
	}

	skip := top.Similarity >= cfg.DefaultGate
	return Intent{
		Type:       QueryGeneral,
		NeedsAI:    !skip,
		Confidence: confidenceBySimilarity(top.Similarity, 0.75),
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func confidenceBySimilarity(similarity, highBar float64) types.Confidence {
	if similarity >= highBar {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}
