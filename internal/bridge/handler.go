package bridge

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/extract"
	"github.com/xiy/webrecall/internal/history"
	"github.com/xiy/webrecall/internal/memory"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

const maxExcerptChars = 1000

// RequestLogger records capture events for the admin dashboard. The
// handler tolerates a nil logger.
type RequestLogger interface {
	InsertBridgeRequestLog(ctx context.Context, rec store.BridgeRequestLog) error
}

// CaptureHandler turns a browser capture request into a saved memory.
type CaptureHandler struct {
	svc    *memory.Service
	store  store.Store
	reqLog RequestLogger
	cfg    config.BridgeConfig
	userID string
	logger *log.Logger
	now    func() time.Time
}

func NewCaptureHandler(svc *memory.Service, st store.Store, reqLog RequestLogger, cfg config.BridgeConfig, userID string, logger *log.Logger) *CaptureHandler {
	return &CaptureHandler{
		svc:    svc,
		store:  st,
		reqLog: reqLog,
		cfg:    cfg,
		userID: userID,
		logger: logger,
		now:    time.Now,
	}
}

// Handle validates, extracts, and persists one capture. Full-page
// captures are checked against the page that is already saved under the
// same canonical URL; selection captures always save.
func (h *CaptureHandler) Handle(ctx context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error) {
	if reason := ValidateRequest(req, h.cfg); reason != "" {
		h.logRequest(ctx, req, "rejected", reason)
		return &types.BridgeResponse{ID: req.ID, Reason: reason}, nil
	}

	canonical := history.CanonicalizeURL(req.URL)
	if !req.SelectedOnly {
		existing, err := h.store.FindByCanonicalURL(ctx, h.userID, canonical)
		if err == nil {
			ago := memory.TimeAgo(existing.CreatedAt, h.now())
			h.logRequest(ctx, req, "duplicate", "")
			return &types.BridgeResponse{
				ID:        req.ID,
				Reason:    "You saved this " + ago + ".",
				Processed: &types.ProcessedPage{SavedID: existing.ID},
			}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	content := req.Text
	title := req.Title
	var byline, excerpt string
	wordCount := req.WordCount
	readingTime := 0

	if req.HTML != "" {
		if article, err := extract.FromHTML(req.HTML); err == nil {
			if article.Title != "" {
				title = article.Title
			}
			if article.Content != "" {
				content = article.Content
			}
			byline = article.Byline
			excerpt = article.Excerpt
			if article.WordCount > 0 {
				wordCount = article.WordCount
			}
			readingTime = article.ReadingTime
		}
	}

	if excerpt == "" {
		excerpt = firstRunes(content, 300)
	}

	saveType := types.SaveTypeAuto
	if req.SelectedOnly {
		saveType = types.SaveTypeSelection
	}

	saved, err := h.svc.Save(ctx, h.userID, memory.SaveInput{
		URL:        req.URL,
		Title:      title,
		Content:    content,
		SourceType: types.SourceWebCapture,
		SaveType:   saveType,
	})
	if err != nil {
		var dup *memory.DuplicateError
		if errors.As(err, &dup) {
			h.logRequest(ctx, req, "duplicate", "")
			return &types.BridgeResponse{
				ID:        req.ID,
				Reason:    dup.Error(),
				Processed: &types.ProcessedPage{SavedID: dup.ExistingID},
			}, nil
		}
		return nil, err
	}

	h.logRequest(ctx, req, "saved", "")
	h.logger.Info("captured page", "id", saved.ID, "url", req.URL, "selection", req.SelectedOnly)

	return &types.BridgeResponse{
		ID: req.ID,
		OK: true,
		Processed: &types.ProcessedPage{
			URL:          req.URL,
			CanonicalURL: canonical,
			Title:        title,
			Content:      strings.TrimSpace(content),
			WordCount:    wordCount,
			Excerpt:      sanitizeExcerpt(excerpt),
			Byline:       byline,
			ReadingTime:  readingTime,
			SavedID:      saved.ID,
		},
	}, nil
}

func (h *CaptureHandler) logRequest(ctx context.Context, req *types.BridgeRequest, outcome, reason string) {
	if h.reqLog == nil {
		return
	}
	rec := store.BridgeRequestLog{
		ID:        req.ID,
		URL:       req.URL,
		Title:     req.Title,
		WordCount: req.WordCount,
		Outcome:   outcome,
		Reason:    reason,
		CreatedAt: h.now(),
	}
	if err := h.reqLog.InsertBridgeRequestLog(ctx, rec); err != nil {
		h.logger.Warn("bridge request log failed", "id", req.ID, "err", err)
	}
}

// sanitizeExcerpt collapses the excerpt onto one line and caps its
// length for the native messaging reply.
func sanitizeExcerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return firstRunes(s, maxExcerptChars)
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
