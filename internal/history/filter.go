package history

import (
	"sort"

	"github.com/xiy/webrecall/pkg/types"
)

// Dedupe collapses entries that share a normalized URL, keeping the one
// with the higher visit count.
func Dedupe(entries []types.HistoryEntry) []types.HistoryEntry {
	seen := make(map[string]types.HistoryEntry, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		key := normalizeKey(entry.URL)
		existing, ok := seen[key]
		if !ok {
			seen[key] = entry
			order = append(order, key)
			continue
		}
		if entry.VisitCount > existing.VisitCount {
			seen[key] = entry
		}
	}

	out := make([]types.HistoryEntry, 0, len(seen))
	for _, key := range order {
		out = append(out, seen[key])
	}
	return out
}

// Prepare runs the full pre-selection funnel: blocklist, dedupe, sort by
// most recent visit, and cap at max entries.
func Prepare(entries []types.HistoryEntry, max int) []types.HistoryEntry {
	filtered := Dedupe(ApplyBlocklist(entries))

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].VisitTime.After(filtered[j].VisitTime)
	})

	if max > 0 && len(filtered) > max {
		filtered = filtered[:max]
	}
	return filtered
}
