// Package history keeps a SQLite log of actuator commands.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/grow-controller/internal/actuator"
)

// DefaultLimit is the number of entries Recent returns when limit <= 0.
const DefaultLimit = 50

// MaxLimit caps a single Recent query.
const MaxLimit = 1000

// Entry is one logged command.
type Entry struct {
	ID int64
	actuator.Event
}

// Log is an append-only command log backed by SQLite.
type Log struct {
	db *sql.DB
}

// Open opens or creates the log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		actuator TEXT NOT NULL,
		brightness_pct INTEGER NOT NULL DEFAULT 0,
		pump_on INTEGER NOT NULL DEFAULT 0,
		trigger TEXT NOT NULL,
		rule_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends an event.
func (l *Log) Record(ctx context.Context, ev actuator.Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (at, actuator, brightness_pct, pump_on, trigger, rule_id) VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ev.Time), string(ev.Actuator), ev.BrightnessPct, ev.On, string(ev.Trigger), ev.RuleID)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, at, actuator, brightness_pct, pump_on, trigger, rule_id
		FROM events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			at      string
			name    string
			trigger string
		)
		if err := rows.Scan(&e.ID, &at, &name, &e.BrightnessPct, &e.On, &trigger, &e.RuleID); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", at, err)
		}
		e.Actuator = actuator.Name(name)
		e.Trigger = actuator.Trigger(trigger)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff and returns how many went.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// formatTime produces fixed-width UTC timestamps so text order is time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
