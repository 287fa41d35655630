package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xiy/webrecall/pkg/types"
)

const summarizeSystemPrompt = "You are a helpful assistant that creates concise summaries."

const answerSystemPrompt = `You are a helpful assistant that answers questions based on the user's saved articles.

IMPORTANT RULES:
1. ONLY use information from the provided sources
2. Cite sources by their number [1], [2], etc.
3. If sources don't contain the answer, say so clearly
4. Keep answers concise (2-3 sentences)
5. Always reference which sources you used

Example:
User: "What did I read about cooking steak?"
Assistant: "Based on your saved articles, the reverse sear method is recommended [1][2]. Cook the steak in the oven at low temperature until it reaches 125°F, then sear in a hot pan for 1-2 minutes per side [1]."`

func rankSystemPrompt(want int) string {
	return fmt.Sprintf(`You are selecting URLs for a "second brain" app that helps users remember content they'll FORGET where they found it.

CRITICAL DISTINCTION:
- SAVE: Content from random websites users will forget the location of
- IGNORE: Official documentation/sites users can easily find again by searching

INCLUDE (worth remembering):
- Blog articles on specific topics (cooking, optimization, debugging, etc.)
- Personal experience posts (Medium, Dev.to, personal blogs)
- News articles (sports, tech news, stories)
- Case studies, startup stories, failure stories
- Tutorials from random blogs (not official docs)
- Forum answers (Stack Overflow specific answers, Reddit threads)
- Opinion pieces, think pieces
- "How I solved X" type articles
- Product reviews, comparisons

EXCLUDE (easy to find again):
- Official documentation (React docs, Supabase docs, OpenAI docs, etc.)
- Any URL containing: /docs/, /guide/, /documentation/, /api/, /reference/
- Getting started pages (/getting-started, /quickstart)
- GitHub repositories, code files, or tree views
- Company websites (homepages, about pages, pricing)
- Google Docs, Google Drive
- Product landing pages
- Tool/framework official sites

REASONING:
If the user needs React docs, they'll Google "React docs". It is always findable.
If the user read "how I debugged a weird React issue" on some blog, they'll forget the URL.

Consider:
1. Is this from an OFFICIAL site? EXCLUDE
2. Is this a PERSONAL/BLOG article? INCLUDE
3. Is this NEWS or OPINION? INCLUDE
4. Would the user forget where they found this? INCLUDE
5. Can the user easily Google this again? EXCLUDE

Respond ONLY with a JSON array:
["url1", "url2", "url3", ...]

Return exactly %d URLs, ordered by quality (best first).`, want)
}

func rankUserPrompt(urlData string, want int) string {
	return fmt.Sprintf(`Here are the URLs to analyze (ordered by recency, most recent first):

%s

Select the top %d or even fewer but URLs must contain the most valuable, informative content for a personal knowledge base.`, urlData, want)
}

type rankCandidate struct {
	Index      int    `json:"index"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	VisitCount int    `json:"visitCount"`
}

// encodeRankCandidates renders history entries for the ranking prompt,
// most recent first, capped to avoid blowing the token budget.
func encodeRankCandidates(entries []types.HistoryEntry, max int) (string, error) {
	sorted := make([]types.HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VisitTime.After(sorted[j].VisitTime)
	})
	if max > 0 && len(sorted) > max {
		sorted = sorted[:max]
	}

	candidates := make([]rankCandidate, len(sorted))
	for i, entry := range sorted {
		candidates[i] = rankCandidate{
			Index:      i + 1,
			URL:        entry.URL,
			Title:      entry.Title,
			VisitCount: entry.VisitCount,
		}
	}

	b, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode rank candidates: %w", err)
	}
	return string(b), nil
}

// decodeRankResponse parses the model's JSON array of URLs. Models
// occasionally wrap the array in a code fence; strip it before parsing.
func decodeRankResponse(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil
	}
	return urls
}

func formatSources(sources []types.RankedMemory) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = fmt.Sprintf("[%d] %s\nURL: %s\nSummary: %s", i+1, src.Title, src.URL, src.Summary)
	}
	return strings.Join(parts, "\n\n")
}

func answerUserPrompt(query string, sources []types.RankedMemory) string {
	return fmt.Sprintf(`Here are the user's saved articles:

%s

User's question: %s

Provide a helpful answer based ONLY on the sources above. Cite sources using [1], [2], etc.`, formatSources(sources), query)
}
