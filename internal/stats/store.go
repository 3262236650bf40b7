// Package stats records which switches and slots are pressed so the layout can
// be tuned from real usage.
package stats

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Press is one recorded switch press.
type Press struct {
	SwitchID string
	Slot     string
	At       time.Time
}

// SwitchCount is a row of the usage report.
type SwitchCount struct {
	SwitchID string `json:"switch_id"`
	Slot     string `json:"slot"`
	Count    int64  `json:"count"`
}

// Summary describes the whole database.
type Summary struct {
	Sessions int64     `json:"sessions"`
	Presses  int64     `json:"presses"`
	Since    time.Time `json:"since,omitzero"`
}

// Store is the SQLite press database. One connection: SQLite has a single
// writer and the daemon is the only one.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("stats: open: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("stats: open: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("stats: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("stats: open: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: open: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartSession registers a daemon run. Registering the same id again keeps
// the first start time, so a restarted recorder resumes its session.
func (s *Store) StartSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, started_at_ms) VALUES (?, ?)", id, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("stats: start session: %w", err)
	}
	return nil
}

// Insert writes presses for session in one transaction.
func (s *Store) Insert(ctx context.Context, session string, presses []Press) (err error) {
	if len(presses) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("stats: insert: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO presses (session_id, switch_id, slot, at_ms) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("stats: insert: prepare: %w", err)
	}
	defer stmt.Close()
	for _, p := range presses {
		if _, err = stmt.ExecContext(ctx, session, p.SwitchID, p.Slot, p.At.UnixMilli()); err != nil {
			return fmt.Errorf("stats: insert: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("stats: insert: commit: %w", err)
	}
	return nil
}

// Top returns the n most pressed switch/slot pairs, most pressed first. Ties
// are ordered by switch id then slot.
func (s *Store) Top(ctx context.Context, n int) ([]SwitchCount, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT switch_id, slot, COUNT(*) AS c
		FROM presses
		GROUP BY switch_id, slot
		ORDER BY c DESC, switch_id, slot
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("stats: top: %w", err)
	}
	defer rows.Close()

	var out []SwitchCount
	for rows.Next() {
		var c SwitchCount
		if err := rows.Scan(&c.SwitchID, &c.Slot, &c.Count); err != nil {
			return nil, fmt.Errorf("stats: top: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: top: %w", err)
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var (
		sum   Summary
		since sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sessions),
		       (SELECT COUNT(*) FROM presses),
		       (SELECT MIN(started_at_ms) FROM sessions)`).Scan(&sum.Sessions, &sum.Presses, &since)
	if err != nil {
		return Summary{}, fmt.Errorf("stats: summary: %w", err)
	}
	if since.Valid {
		sum.Since = time.UnixMilli(since.Int64)
	}
	return sum, nil
}
