// Package state persists run bookkeeping between invocations: when the
// last issue went out, and a short history of sent issues. One run
// reads the last-run time at startup and advances it only after a
// successful send, so a failed run leaves the window untouched and the
// next run picks the same messages up again.
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const lastRunKey = "last_run"

// Store is run bookkeeping backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and on first use creates) the state database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS issues (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		sent_at  TEXT NOT NULL,
		subject  TEXT NOT NULL,
		sources  INTEGER NOT NULL,
		items    INTEGER NOT NULL,
		bytes    INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM run_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO run_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LastRun returns the time of the last successful send, or the zero
// time when no run has completed yet.
func (s *Store) LastRun() (time.Time, error) {
	value, err := s.get(lastRunKey)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last run %q: %w", value, err)
	}
	return t, nil
}

// SetLastRun records a successful send time.
func (s *Store) SetLastRun(t time.Time) error {
	return s.set(lastRunKey, t.UTC().Format(time.RFC3339))
}

// IssueRecord is one row of sent-issue history.
type IssueRecord struct {
	SentAt  time.Time
	Subject string
	Sources int
	Items   int
	Bytes   int
}

// RecordIssue appends one sent issue to the history.
func (s *Store) RecordIssue(rec IssueRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO issues (sent_at, subject, sources, items, bytes) VALUES (?, ?, ?, ?, ?)`,
		rec.SentAt.UTC().Format(time.RFC3339), rec.Subject, rec.Sources, rec.Items, rec.Bytes,
	)
	if err != nil {
		return fmt.Errorf("record issue: %w", err)
	}
	return nil
}

// RecentIssues returns up to n most recent sent issues, newest first.
func (s *Store) RecentIssues(n int) ([]IssueRecord, error) {
	rows, err := s.db.Query(
		`SELECT sent_at, subject, sources, items, bytes FROM issues ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent issues: %w", err)
	}
	defer rows.Close()

	var recs []IssueRecord
	for rows.Next() {
		var rec IssueRecord
		var sentAt string
		if err := rows.Scan(&sentAt, &rec.Subject, &rec.Sources, &rec.Items, &rec.Bytes); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, sentAt); err == nil {
			rec.SentAt = t
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
