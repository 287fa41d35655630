package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/xiy/webrecall/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Stats summarizes database counters for admin dashboards.
type Stats struct {
	Total          int64
	AutoSaves      int64
	SelectionSaves int64
	CachedSearches int64
	LastSavedAt    time.Time
}

// CachedSearch is a cached answer for one normalized user query. The
// snapshot marks the newest memory that existed when the answer was
// computed; a newer memory invalidates the row.
type CachedSearch struct {
	UserID          string
	NormalizedQuery string
	ResponseJSON    string
	SnapshotAt      time.Time
	CreatedAt       time.Time
}

// BridgeRequestLog captures one capture request handled by the bridge.
type BridgeRequestLog struct {
	ID        string
	URL       string
	Title     string
	WordCount int
	Outcome   string
	Reason    string
	CreatedAt time.Time
}

// Store represents persistence operations used by the memory service
// and the search engine.
type Store interface {
	InsertMemory(ctx context.Context, mem types.Memory) (types.Memory, error)
	GetMemory(ctx context.Context, id string) (types.Memory, error)
	ListMemories(ctx context.Context, userID string) ([]types.Memory, error)
	FindByCanonicalURL(ctx context.Context, userID, canonical string) (types.Memory, error)
	DeleteMemory(ctx context.Context, id string) error
	SnapshotAt(ctx context.Context, userID string) (time.Time, error)
	CachedSearch(ctx context.Context, userID, normalizedQuery string) (CachedSearch, error)
	PutCachedSearch(ctx context.Context, row CachedSearch) error
	PruneSearches(ctx context.Context, userID string, snapshot time.Time) (int64, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	Close() error
}

// SQLiteStore is a SQLite-backed memory store.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLite opens and initializes the SQLite store.
func OpenSQLite(ctx context.Context, dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, stmt := range splitSQLStatements(schemaSQL) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run schema stmt: %w", err)
		}
	}
	return nil
}

func splitSQLStatements(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p+";")
	}
	return out
}

func (s *SQLiteStore) InsertMemory(ctx context.Context, mem types.Memory) (types.Memory, error) {
	created := mem.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	const q = `INSERT INTO memories (
		id, user_id, url, canonical_url, title, content, summary, intent,
		save_type, source_type, embedding, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		mem.ID,
		mem.UserID,
		mem.URL,
		mem.CanonicalURL,
		mem.Title,
		mem.Content,
		mem.Summary,
		mem.Intent,
		string(mem.SaveType),
		string(mem.SourceType),
		EncodeEmbedding(mem.Embedding),
		created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mem, fmt.Errorf("insert memory: %w", err)
	}

	mem.CreatedAt = created
	return mem, nil
}

const memoryColumns = `id, user_id, url, canonical_url, title, content, summary, intent,
       save_type, source_type, embedding, created_at`

func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (types.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ? LIMIT 1`
	row := s.db.QueryRowContext(ctx, q, id)
	mem, err := scanMemoryRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mem, err
		}
		return mem, fmt.Errorf("get memory: %w", err)
	}
	return mem, nil
}

// ListMemories returns every memory for the user, embeddings included,
// in newest-first order. The corpus is small enough that ranking happens
// in process against the full set.
func (s *SQLiteStore) ListMemories(ctx context.Context, userID string) ([]types.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var items []types.Memory
	for rows.Next() {
		mem, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, mem)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) FindByCanonicalURL(ctx context.Context, userID, canonical string) (types.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories
WHERE user_id = ? AND canonical_url = ?
ORDER BY created_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, q, userID, canonical)
	mem, err := scanMemoryRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mem, err
		}
		return mem, fmt.Errorf("find by canonical url: %w", err)
	}
	return mem, nil
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SnapshotAt returns the created_at of the user's newest memory, or the
// zero time when the user has no memories.
func (s *SQLiteStore) SnapshotAt(ctx context.Context, userID string) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT max(created_at) FROM memories WHERE user_id = ?`, userID,
	).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot at: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snapshot timestamp: %w", err)
	}
	return ts, nil
}

func (s *SQLiteStore) CachedSearch(ctx context.Context, userID, normalizedQuery string) (CachedSearch, error) {
	var (
		row      CachedSearch
		snapshot sql.NullString
		created  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, normalized_query, response_json, memory_snapshot_at, created_at
FROM recent_searches
WHERE user_id = ? AND normalized_query = ?
LIMIT 1`, userID, normalizedQuery).Scan(&row.UserID, &row.NormalizedQuery, &row.ResponseJSON, &snapshot, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, err
		}
		return row, fmt.Errorf("get cached search: %w", err)
	}
	if snapshot.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, snapshot.String); err == nil {
			row.SnapshotAt = ts
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		row.CreatedAt = ts
	}
	return row, nil
}

func (s *SQLiteStore) PutCachedSearch(ctx context.Context, row CachedSearch) error {
	created := row.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO recent_searches (
		user_id, normalized_query, response_json, memory_snapshot_at, created_at
	) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, normalized_query) DO UPDATE SET
		response_json = excluded.response_json,
		memory_snapshot_at = excluded.memory_snapshot_at,
		created_at = excluded.created_at`,
		row.UserID,
		row.NormalizedQuery,
		row.ResponseJSON,
		row.SnapshotAt.UTC().Format(time.RFC3339Nano),
		created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put cached search: %w", err)
	}
	return nil
}

// PruneSearches deletes cached answers computed against an older memory
// snapshot than the one given.
func (s *SQLiteStore) PruneSearches(ctx context.Context, userID string, snapshot time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM recent_searches WHERE user_id = ? AND (memory_snapshot_at IS NULL OR memory_snapshot_at < ?)`,
		userID, snapshot.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune searches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, userID string) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE user_id = ?`, userID).Scan(&st.Total); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE user_id = ? AND save_type = 'auto'`, userID).Scan(&st.AutoSaves); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE user_id = ? AND save_type = 'selection'`, userID).Scan(&st.SelectionSaves); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM recent_searches WHERE user_id = ?`, userID).Scan(&st.CachedSearches); err != nil {
		return st, err
	}
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT max(created_at) FROM memories WHERE user_id = ?`, userID).Scan(&last); err != nil {
		return st, err
	}
	if last.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, last.String); err == nil {
			st.LastSavedAt = ts
		}
	}
	return st, nil
}

// InsertBridgeRequestLog stores one capture event for admin observability.
func (s *SQLiteStore) InsertBridgeRequestLog(ctx context.Context, rec BridgeRequestLog) error {
	ts := rec.CreatedAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO bridge_requests (
		id, url, title, word_count, outcome, reason, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.URL,
		strings.TrimSpace(rec.Title),
		rec.WordCount,
		rec.Outcome,
		strings.TrimSpace(rec.Reason),
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert bridge request log: %w", err)
	}
	return nil
}

// RecentBridgeRequestLogs returns most recent capture events in newest-first order.
func (s *SQLiteStore) RecentBridgeRequestLogs(ctx context.Context, limit int) ([]BridgeRequestLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, title, word_count, outcome, reason, created_at
FROM bridge_requests
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bridge request logs: %w", err)
	}
	defer rows.Close()

	items := make([]BridgeRequestLog, 0, limit)
	for rows.Next() {
		var (
			row            BridgeRequestLog
			createdAtValue string
		)
		if err := rows.Scan(
			&row.ID,
			&row.URL,
			&row.Title,
			&row.WordCount,
			&row.Outcome,
			&row.Reason,
			&createdAtValue,
		); err != nil {
			return nil, fmt.Errorf("scan bridge request log: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAtValue); err == nil {
			row.CreatedAt = ts
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// RecentMemories returns compact memory rows in newest-first order.
func (s *SQLiteStore) RecentMemories(ctx context.Context, userID string, limit int) ([]types.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + memoryColumns + ` FROM memories
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	defer rows.Close()

	items := make([]types.Memory, 0, limit)
	for rows.Next() {
		mem, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, mem)
	}
	return items, rows.Err()
}

// RecentSearches returns cached search rows in newest-first order.
func (s *SQLiteStore) RecentSearches(ctx context.Context, userID string, limit int) ([]CachedSearch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, normalized_query, response_json, memory_snapshot_at, created_at
FROM recent_searches
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent searches: %w", err)
	}
	defer rows.Close()

	items := make([]CachedSearch, 0, limit)
	for rows.Next() {
		var (
			row      CachedSearch
			snapshot sql.NullString
			created  string
		)
		if err := rows.Scan(&row.UserID, &row.NormalizedQuery, &row.ResponseJSON, &snapshot, &created); err != nil {
			return nil, fmt.Errorf("scan recent search: %w", err)
		}
		if snapshot.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, snapshot.String); err == nil {
				row.SnapshotAt = ts
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			row.CreatedAt = ts
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(sc scanner) (types.Memory, error) {
	var (
		mem       types.Memory
		saveType  string
		srcType   string
		embedding []byte
		createdAt string
	)
	err := sc.Scan(
		&mem.ID,
		&mem.UserID,
		&mem.URL,
		&mem.CanonicalURL,
		&mem.Title,
		&mem.Content,
		&mem.Summary,
		&mem.Intent,
		&saveType,
		&srcType,
		&embedding,
		&createdAt,
	)
	if err != nil {
		return mem, err
	}

	mem.SaveType = types.SaveType(saveType)
	mem.SourceType = types.SourceType(srcType)

	vec, err := DecodeEmbedding(embedding)
	if err != nil {
		return mem, fmt.Errorf("decode embedding for %s: %w", mem.ID, err)
	}
	mem.Embedding = vec

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return mem, err
	}
	mem.CreatedAt = created
	return mem, nil
}
