package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // driver registration
)

const busyTimeoutMillis = 5000

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id   TEXT PRIMARY KEY,
		ts   TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		meta TEXT NOT NULL DEFAULT '{}',
		vec  TEXT NOT NULL DEFAULT '[]',
		seq  INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq)`,
}

// sqliteStore keeps entries in a single-connection SQLite database.
// Ranking still happens in Go so both backends score identically.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the memory database at path. The caller
// owns the returned store; Close releases the connection.
func OpenSQLite(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memory: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	// SQLite serializes writes anyway; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: set busy_timeout: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory: migrate: %w", err)
		}
	}

	return &sqliteStore{db: db}, nil
}

// Close releases the database connection.
func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Add(ctx context.Context, text string, tags []string, meta map[string]any) (Entry, error) {
	if tags == nil {
		tags = []string{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	entry := Entry{
		ID:   uuid.NewString(),
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Text: text,
		Tags: tags,
		Meta: meta,
		Vec:  Embed(text),
	}

	tagsJSON, metaJSON, vecJSON, err := encodeEntry(entry)
	if err != nil {
		return Entry{}, err
	}
	// seq preserves insertion order; the subselect is atomic per statement
	// on the single connection.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, ts, text, tags, meta, vec, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM memories))`,
		entry.ID, entry.TS, entry.Text, tagsJSON, metaJSON, vecJSON,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: insert: %w", err)
	}
	return entry, nil
}

func (s *sqliteStore) List(ctx context.Context, limit int, tag string) ([]Entry, error) {
	entries, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return tail(filterTag(entries, tag), limit), nil
}

func (s *sqliteStore) Search(ctx context.Context, query string, topK int, tag string) ([]Scored, error) {
	entries, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	entries = filterTag(entries, tag)
	if len(entries) == 0 {
		return nil, nil
	}
	return rank(entries, query, topK), nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("memory: delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("memory: rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Update(ctx context.Context, id string, change Update) (bool, error) {
	entries, err := s.loadAll(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		applyUpdate(&e, change)
		tagsJSON, metaJSON, vecJSON, err := encodeEntry(e)
		if err != nil {
			return false, err
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE memories SET text = ?, tags = ?, meta = ?, vec = ? WHERE id = ?`,
			e.Text, tagsJSON, metaJSON, vecJSON, id,
		)
		if err != nil {
			return false, fmt.Errorf("memory: update: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *sqliteStore) loadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, text, tags, meta, vec FROM memories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			tagsJSON string
			metaJSON string
			vecJSON  string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Text, &tagsJSON, &metaJSON, &vecJSON); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("memory: unmarshal tags: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Meta); err != nil {
			return nil, fmt.Errorf("memory: unmarshal meta: %w", err)
		}
		if err := json.Unmarshal([]byte(vecJSON), &e.Vec); err != nil {
			return nil, fmt.Errorf("memory: unmarshal vec: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: rows: %w", err)
	}
	return entries, nil
}

func encodeEntry(e Entry) (tags, meta, vec string, err error) {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("memory: marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return "", "", "", fmt.Errorf("memory: marshal meta: %w", err)
	}
	vecJSON, err := json.Marshal(e.Vec)
	if err != nil {
		return "", "", "", fmt.Errorf("memory: marshal vec: %w", err)
	}
	return string(tagsJSON), string(metaJSON), string(vecJSON), nil
}
