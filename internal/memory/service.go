// Package memory implements the save pipeline: clean extracted text,
// summarize it, embed the summary, and persist the memory.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/history"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

// DuplicateError reports that the page was saved earlier. The message is
// shown to the user verbatim.
type DuplicateError struct {
	ExistingID string
	SavedAt    time.Time
	Ago        string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("You saved this %s.", e.Ago)
}

// SaveInput is one page to be remembered.
type SaveInput struct {
	URL        string
	Title      string
	Content    string
	Intent     string
	SourceType types.SourceType
	SaveType   types.SaveType
}

// Service coordinates saving, deleting and summarizing memories.
type Service struct {
	store  store.Store
	ai     ai.Client
	cfg    config.AIConfig
	logger *log.Logger
	now    func() time.Time
}

// NewService wires the memory service.
func NewService(st store.Store, aiClient ai.Client, cfg config.AIConfig, logger *log.Logger) *Service {
	return &Service{
		store:  st,
		ai:     aiClient,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Save runs the full save pipeline for one page. Full-page saves of a
// URL that already has a memory fail with DuplicateError; explicit
// selection saves always go through.
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (types.Memory, error) {
	if in.URL == "" {
		return types.Memory{}, errors.New("save: url is required")
	}
	if in.Content == "" {
		return types.Memory{}, errors.New("save: content is required")
	}

	canonical := history.CanonicalizeURL(in.URL)

	if in.SaveType != types.SaveTypeSelection {
		existing, err := s.store.FindByCanonicalURL(ctx, userID, canonical)
		if err == nil {
			now := s.now()
			return types.Memory{}, &DuplicateError{
				ExistingID: existing.ID,
				SavedAt:    existing.CreatedAt,
				Ago:        TimeAgo(existing.CreatedAt, now),
			}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return types.Memory{}, fmt.Errorf("check duplicate: %w", err)
		}
	}

	cleaned := CleanContent(in.Content)
	trimmed := TrimForProcessing(cleaned, s.cfg.MaxInputChars)

	summary, err := s.ai.Summarize(ctx, in.Title, trimmed)
	if err != nil {
		return types.Memory{}, fmt.Errorf("summarize page: %w", err)
	}

	embedding, err := s.ai.Embed(ctx, summary)
	if err != nil {
		return types.Memory{}, fmt.Errorf("embed summary: %w", err)
	}

	mem := types.Memory{
		ID:           uuid.NewString(),
		UserID:       userID,
		URL:          in.URL,
		CanonicalURL: canonical,
		Title:        in.Title,
		Content:      cleaned,
		Summary:      summary,
		Intent:       in.Intent,
		SaveType:     in.SaveType,
		SourceType:   in.SourceType,
		Embedding:    embedding,
		CreatedAt:    s.now(),
	}
	if mem.SaveType == "" {
		mem.SaveType = types.SaveTypeAuto
	}

	saved, err := s.store.InsertMemory(ctx, mem)
	if err != nil {
		return types.Memory{}, fmt.Errorf("persist memory: %w", err)
	}

	s.logger.Info("memory saved",
		"id", saved.ID,
		"url", saved.URL,
		"source", saved.SourceType,
		"chars", len(saved.Content),
	)
	return saved, nil
}

// Delete removes a memory by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteMemory(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("memory %s not found", id)
		}
		return fmt.Errorf("delete memory: %w", err)
	}
	s.logger.Info("memory deleted", "id", id)
	return nil
}

// Get fetches one memory by ID.
func (s *Service) Get(ctx context.Context, id string) (types.Memory, error) {
	mem, err := s.store.GetMemory(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mem, fmt.Errorf("memory %s not found", id)
		}
		return mem, err
	}
	return mem, nil
}

// Stats returns save counters for the user.
func (s *Service) Stats(ctx context.Context, userID string) (store.Stats, error) {
	return s.store.Stats(ctx, userID)
}
