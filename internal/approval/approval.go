// Package approval keeps a queryable history of arbiter decisions in a
// local SQLite database.
package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // driver registration
)

// Arbiter outcomes.
const (
	OutcomeAuto     = "auto"     // no approval required by policy
	OutcomeApproved = "approved" // sink approved synchronously
	OutcomeDenied   = "denied"   // sink denied synchronously
	OutcomeDeferred = "deferred" // sink deferred; token issued
	OutcomeResolved = "resolved" // deferred decision arrived via token
)

const defaultRecentLimit = 100

var schema = []string{
	`CREATE TABLE IF NOT EXISTS approval_history (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		ts       INTEGER NOT NULL,
		tool     TEXT NOT NULL,
		tool_id  TEXT,
		args     TEXT,
		outcome  TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		reason   TEXT,
		policy   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_approval_ts ON approval_history(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_approval_tool ON approval_history(tool)`,
}

// Record is one arbiter decision.
type Record struct {
	ID       int64
	TS       time.Time
	Tool     string
	ToolID   string
	Args     map[string]any
	Outcome  string
	Approved bool
	Reason   string
	Policy   string
}

// History is the decision log. Safe for concurrent use.
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("approval: create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("approval: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("approval: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("approval: set busy_timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("approval: migrate: %w", err)
		}
	}
	return &History{db: db}, nil
}

// Close releases the database connection.
func (h *History) Close() error { return h.db.Close() }

// Record appends one decision. A zero TS is stamped with the current
// time.
func (h *History) Record(ctx context.Context, rec Record) error {
	if rec.TS.IsZero() {
		rec.TS = time.Now()
	}
	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("approval: marshal args: %w", err)
	}
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO approval_history (ts, tool, tool_id, args, outcome, approved, reason, policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TS.Unix(), rec.Tool, rec.ToolID, string(argsJSON), rec.Outcome,
		boolToInt(rec.Approved), rec.Reason, rec.Policy,
	)
	if err != nil {
		return fmt.Errorf("approval: insert: %w", err)
	}
	return nil
}

// Recent returns the newest decisions first. A non-positive limit uses
// the default of 100.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, ts, tool, tool_id, args, outcome, approved, reason, policy
		FROM approval_history
		ORDER BY ts DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("approval: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			ts       int64
			toolID   sql.NullString
			argsJSON sql.NullString
			reason   sql.NullString
			policy   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Tool, &toolID, &argsJSON, &rec.Outcome, &rec.Approved, &reason, &policy); err != nil {
			return nil, fmt.Errorf("approval: scan: %w", err)
		}
		rec.TS = time.Unix(ts, 0)
		rec.ToolID = toolID.String
		rec.Reason = reason.String
		rec.Policy = policy.String
		if argsJSON.Valid && argsJSON.String != "" {
			if err := json.Unmarshal([]byte(argsJSON.String), &rec.Args); err != nil {
				return nil, fmt.Errorf("approval: unmarshal args: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("approval: rows: %w", err)
	}
	return records, nil
}

// PurgeOlderThan removes records before cutoff and returns how many
// were deleted.
func (h *History) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx,
		"DELETE FROM approval_history WHERE ts < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("approval: purge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("approval: rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
