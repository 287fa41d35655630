package types

import "time"

// SourceType records which ingestion path created a memory.
type SourceType string

const (
	SourceBrowserHistory SourceType = "browser-history"
	SourceManual         SourceType = "manual"
	SourceBookmarkImport SourceType = "bookmark-import"
	SourceWebCapture     SourceType = "web-capture"
)

// SaveType distinguishes full-page captures from selected-text captures.
type SaveType string

const (
	SaveTypeAuto      SaveType = "auto"
	SaveTypeSelection SaveType = "selection"
)

// Memory is one persisted article. Immutable after creation except for
// owner-initiated deletion.
type Memory struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	URL          string     `json:"url"`
	CanonicalURL string     `json:"canonical_url"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary"`
	Intent       string     `json:"intent,omitempty"`
	SaveType     SaveType   `json:"save_type"`
	Embedding    []float32  `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	SourceType   SourceType `json:"source_type"`
}

// RankedMemory augments a Memory with per-query scores. It exists only
// within a single search invocation and is never persisted.
type RankedMemory struct {
	Memory
	Similarity   float64 `json:"similarity"`
	RecencyScore float64 `json:"recency_score"`
	FinalScore   float64 `json:"final_score"`
}

// HistoryEntry is one row from an imported browsing history.
type HistoryEntry struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	VisitTime  time.Time `json:"visit_time"`
	VisitCount int       `json:"visit_count"`
}

// ProcessedEntry is a history entry whose content has been fetched and
// extracted, ready for persistence.
type ProcessedEntry struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	WordCount  int       `json:"word_count"`
	VisitCount int       `json:"visit_count"`
	VisitTime  time.Time `json:"visit_time"`
}

// Stage names one state of the ingestion pipeline.
type Stage string

const (
	StageFiltering   Stage = "filtering"
	StageAISelection Stage = "ai-selection"
	StageFetching    Stage = "fetching"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// FunnelStats counts entries surviving each ingestion stage.
type FunnelStats struct {
	TotalInput          int `json:"total_input"`
	AfterBlocklist      int `json:"after_blocklist"`
	SentToRanker        int `json:"sent_to_ranker"`
	Selected            int `json:"selected"`
	SuccessfullyFetched int `json:"successfully_fetched"`
	FinalCount          int `json:"final_count"`
}

// ProcessingProgress is streamed to an observer while a batch runs.
type ProcessingProgress struct {
	Stage      Stage       `json:"stage"`
	Message    string      `json:"message"`
	Percent    float64     `json:"percent"`
	CurrentURL string      `json:"current_url,omitempty"`
	Stats      FunnelStats `json:"stats"`
}

// ProcessingResult is the terminal outcome of one ingestion batch.
type ProcessingResult struct {
	Success bool        `json:"success"`
	Stats   FunnelStats `json:"stats"`
	Message string      `json:"message,omitempty"`
}

// Confidence grades a search answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SearchSource is one cited memory in a search response.
type SearchSource struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Intent     string    `json:"intent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Similarity float64   `json:"similarity"`
}

// SearchResponse is the final answer returned for a query.
type SearchResponse struct {
	Answer     string         `json:"answer"`
	Sources    []SearchSource `json:"sources"`
	Confidence Confidence     `json:"confidence"`
	UsedAI     bool           `json:"used_ai"`
}

// BridgeRequest is one capture request arriving over the local control
// channel or the native messaging stream.
type BridgeRequest struct {
	ID           string `json:"id"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title,omitempty"`
	Text         string `json:"text,omitempty"`
	HTML         string `json:"html,omitempty"`
	WordCount    int    `json:"wordCount,omitempty"`
	NodeCount    int    `json:"nodeCount,omitempty"`
	HTMLSize     int    `json:"htmlSize,omitempty"`
	SelectedOnly bool   `json:"selectedOnly,omitempty"`
}

// ProcessedPage describes the saved article echoed back to the extension.
type ProcessedPage struct {
	URL          string `json:"url"`
	CanonicalURL string `json:"canonicalUrl,omitempty"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	WordCount    int    `json:"wordCount"`
	Excerpt      string `json:"excerpt,omitempty"`
	Byline       string `json:"byline,omitempty"`
	ReadingTime  int    `json:"readingTime,omitempty"`
	SavedID      string `json:"savedId,omitempty"`
}

// BridgeResponse answers one BridgeRequest.
type BridgeResponse struct {
	ID        string         `json:"id"`
	OK        bool           `json:"ok"`
	Reason    string         `json:"reason,omitempty"`
	Processed *ProcessedPage `json:"processed,omitempty"`
}
