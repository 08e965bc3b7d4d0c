package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/grow-controller/internal/schedule"
)

// SQLite persists rules one row per rule, keyed by position, with the
// overrides in a single-row table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS overrides (
		singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
		body TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Load reads all rules in position order plus the overrides row.
func (s *SQLite) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM rules ORDER BY position ASC`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return Snapshot{}, fmt.Errorf("scan rule: %w", err)
		}
		var r schedule.Rule
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			r = schedule.Malformed([]byte(body), err)
		}
		snap.Rules = append(snap.Rules, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate rules: %w", err)
	}

	var body string
	err = s.db.QueryRowContext(ctx, `SELECT body FROM overrides WHERE singleton = 1`).Scan(&body)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return Snapshot{}, fmt.Errorf("query overrides: %w", err)
	default:
		if err := json.Unmarshal([]byte(body), &snap.Overrides); err != nil {
			return Snapshot{}, fmt.Errorf("decode overrides: %w", err)
		}
	}
	return snap, nil
}

// Save rewrites both tables in one transaction.
func (s *SQLite) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for i, r := range snap.Rules {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode rule %q: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO rules (position, id, body) VALUES (?, ?, ?)`, i, r.ID, string(body)); err != nil {
			return fmt.Errorf("insert rule %q: %w", r.ID, err)
		}
	}

	body, err := json.Marshal(snap.Overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO overrides (singleton, body) VALUES (1, ?)`, string(body)); err != nil {
		return fmt.Errorf("write overrides: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
