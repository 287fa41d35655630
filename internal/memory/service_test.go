package memory

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

type fakeStore struct {
	memories map[string]types.Memory
	inserted []types.Memory
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: map[string]types.Memory{}}
}

func (f *fakeStore) InsertMemory(_ context.Context, mem types.Memory) (types.Memory, error) {
	f.memories[mem.ID] = mem
	f.inserted = append(f.inserted, mem)
	return mem, nil
}

func (f *fakeStore) GetMemory(_ context.Context, id string) (types.Memory, error) {
	mem, ok := f.memories[id]
	if !ok {
		return types.Memory{}, sql.ErrNoRows
	}
	return mem, nil
}

func (f *fakeStore) ListMemories(_ context.Context, userID string) ([]types.Memory, error) {
	var out []types.Memory
	for _, mem := range f.memories {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (f *fakeStore) FindByCanonicalURL(_ context.Context, userID, canonical string) (types.Memory, error) {
	for _, mem := range f.memories {
		if mem.UserID == userID && mem.CanonicalURL == canonical {
			return mem, nil
		}
	}
	return types.Memory{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteMemory(_ context.Context, id string) error {
	if _, ok := f.memories[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.memories, id)
	return nil
}

func (f *fakeStore) SnapshotAt(_ context.Context, userID string) (time.Time, error) {
	var max time.Time
	for _, mem := range f.memories {
		if mem.UserID == userID && mem.CreatedAt.After(max) {
			max = mem.CreatedAt
		}
	}
	return max, nil
}

func (f *fakeStore) CachedSearch(context.Context, string, string) (store.CachedSearch, error) {
	return store.CachedSearch{}, sql.ErrNoRows
}

func (f *fakeStore) PutCachedSearch(context.Context, store.CachedSearch) error { return nil }

func (f *fakeStore) PruneSearches(context.Context, string, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) Stats(_ context.Context, userID string) (store.Stats, error) {
	var st store.Stats
	for _, mem := range f.memories {
		if mem.UserID != userID {
			continue
		}
		st.Total++
		if mem.SaveType == types.SaveTypeSelection {
			st.SelectionSaves++
		} else {
			st.AutoSaves++
		}
	}
	return st, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeAI struct {
	summary   string
	embedding []float32
	summarizeErr error
}

func (f *fakeAI) Summarize(_ context.Context, title, text string) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeAI) Embed(context.Context, string) ([]float32, error) {
	return f.embedding, nil
}

func (f *fakeAI) RankURLs(context.Context, []types.HistoryEntry) ([]string, error) {
	return nil, nil
}

func (f *fakeAI) Answer(context.Context, string, []types.RankedMemory) (ai.Answer, error) {
	return ai.Answer{}, nil
}

func newTestService(st store.Store, aiClient ai.Client) *Service {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return NewService(st, aiClient, config.Default().AI, logger)
}

func TestService_Save(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	svc := newTestService(st, &fakeAI{summary: "a short summary", embedding: []float32{0.1, 0.2}})

	mem, err := svc.Save(ctx, "local", SaveInput{
		URL:        "https://www.example.com/post/?utm_source=x",
		Title:      "A Post",
		Content:    "Some   article\n\ntext. Copyright 2026 Example Inc.",
		SourceType: types.SourceWebCapture,
		SaveType:   types.SaveTypeAuto,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if mem.ID == "" {
		t.Error("Save() produced empty ID")
	}
	if mem.CanonicalURL != "https://example.com/post" {
		t.Errorf("CanonicalURL = %q", mem.CanonicalURL)
	}
	if mem.Summary != "a short summary" {
		t.Errorf("Summary = %q", mem.Summary)
	}
	if strings.Contains(mem.Content, "Copyright") {
		t.Errorf("Content kept footer noise: %q", mem.Content)
	}
	if strings.Contains(mem.Content, "  ") {
		t.Errorf("Content kept doubled whitespace: %q", mem.Content)
	}
	if len(mem.Embedding) != 2 {
		t.Errorf("Embedding = %v, want fake vector", mem.Embedding)
	}
}

func TestService_SaveDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	svc := newTestService(st, &fakeAI{summary: "s", embedding: []float32{1}})

	savedAt := time.Now().Add(-3 * 24 * time.Hour)
	svc.now = func() time.Time { return time.Now() }

	first, err := svc.Save(ctx, "local", SaveInput{
		URL:     "https://example.com/article",
		Title:   "Article",
		Content: "body",
	})
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	// Backdate the stored memory so the duplicate message has an age.
	stored := st.memories[first.ID]
	stored.CreatedAt = savedAt
	st.memories[first.ID] = stored

	_, err = svc.Save(ctx, "local", SaveInput{
		URL:     "https://www.example.com/article/",
		Title:   "Article again",
		Content: "body again",
	})
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("second Save() error = %v, want DuplicateError", err)
	}
	if dup.ExistingID != first.ID {
		t.Errorf("DuplicateError.ExistingID = %q, want %q", dup.ExistingID, first.ID)
	}
	if dup.Error() != "You saved this 3 days ago." {
		t.Errorf("DuplicateError message = %q", dup.Error())
	}

	// A selection save of the same URL is allowed.
	sel, err := svc.Save(ctx, "local", SaveInput{
		URL:      "https://example.com/article",
		Title:    "Highlighted bit",
		Content:  "just the selection",
		SaveType: types.SaveTypeSelection,
	})
	if err != nil {
		t.Fatalf("selection Save() error = %v", err)
	}
	if sel.SaveType != types.SaveTypeSelection {
		t.Errorf("selection SaveType = %q", sel.SaveType)
	}
}

func TestService_SaveSummarizeFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	svc := newTestService(st, &fakeAI{summarizeErr: errors.New("model offline")})

	_, err := svc.Save(ctx, "local", SaveInput{
		URL:     "https://example.com/a",
		Title:   "A",
		Content: "text",
	})
	if err == nil {
		t.Fatal("Save() should fail when summarization fails")
	}
	if len(st.inserted) != 0 {
		t.Errorf("nothing should be persisted on failure, got %d inserts", len(st.inserted))
	}
}

func TestService_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	svc := newTestService(st, &fakeAI{summary: "s", embedding: []float32{1}})

	mem, err := svc.Save(ctx, "local", SaveInput{URL: "https://example.com/x", Title: "X", Content: "c"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := svc.Delete(ctx, mem.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, mem.ID); err == nil {
		t.Fatal("Delete() of missing memory should fail")
	}
}

func TestTimeAgo(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		from time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-2 * 24 * time.Hour), "2 days ago"},
		{now.Add(-16 * 24 * time.Hour), "2 weeks ago"},
		{now.Add(-70 * 24 * time.Hour), "2 months ago"},
		{now.Add(time.Hour), "just now"}, // future timestamps clamp to zero
	}
	for _, tc := range tests {
		if got := TimeAgo(tc.from, now); got != tc.want {
			t.Errorf("TimeAgo(%v) = %q, want %q", tc.from, got, tc.want)
		}
	}
}

func TestTrimForProcessing(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 100)
	if got := TrimForProcessing(long, 40); len(got) != 40 {
		t.Errorf("TrimForProcessing() len = %d, want 40", len(got))
	}
	if got := TrimForProcessing("short", 40); got != "short" {
		t.Errorf("TrimForProcessing() = %q, want unchanged", got)
	}
}
