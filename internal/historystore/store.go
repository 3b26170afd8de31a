// Package historystore persists playback session history: when a track
// started, stopped, was sought, or errored. It is queried to answer "what
// was recently played" and to diagnose repeated playback failures; it does
// not drive playback itself.
package historystore

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// EventKind enumerates the terminal and notable transitions the playback
// engine reports.
type EventKind string

const (
	EventStart EventKind = "start"
	EventStop  EventKind = "stop"
	EventSeek  EventKind = "seek"
	EventError EventKind = "error"
)

// Event is one row of playback history.
type Event struct {
	ID         int64
	TrackID    string
	SourceType string
	Kind       EventKind
	Position   time.Duration
	Detail     string
	At         time.Time
}

// Open creates (if needed) and migrates the sqlite database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=memory",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA journal_mode=WAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run history migrations: %w", err)
	}

	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS playback_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	kind TEXT NOT NULL,
	position_ms INTEGER NOT NULL DEFAULT 0,
	detail TEXT DEFAULT '',
	at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_playback_events_track ON playback_events(track_id);
CREATE INDEX IF NOT EXISTS idx_playback_events_at ON playback_events(at);
CREATE INDEX IF NOT EXISTS idx_playback_events_kind ON playback_events(kind);
`

// Record appends one event. Failures are logged, not returned: history is a
// diagnostic side channel and must never block or fail playback.
func (s *Store) Record(ev Event) {
	_, err := s.db.Exec(
		`INSERT INTO playback_events (track_id, source_type, kind, position_ms, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.TrackID, ev.SourceType, string(ev.Kind), ev.Position.Milliseconds(), ev.Detail, ev.At,
	)
	if err != nil {
		log.Printf("[historystore] record %s for %s failed: %v", ev.Kind, ev.TrackID, err)
	}
}

// Recent returns the most recent events for a track, newest first.
func (s *Store) Recent(trackID string, limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, track_id, source_type, kind, position_ms, detail, at FROM playback_events
		 WHERE track_id = ? ORDER BY at DESC, id DESC LIMIT ?`,
		trackID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var posMs int64
		var kind string
		if err := rows.Scan(&ev.ID, &ev.TrackID, &ev.SourceType, &kind, &posMs, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Position = time.Duration(posMs) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentErrors returns the most recent error events across all tracks,
// newest first, for crash/failure diagnosis.
func (s *Store) RecentErrors(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, track_id, source_type, kind, position_ms, detail, at FROM playback_events
		 WHERE kind = ? ORDER BY at DESC, id DESC LIMIT ?`,
		string(EventError), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent errors: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var posMs int64
		if err := rows.Scan(&ev.ID, &ev.TrackID, &ev.SourceType, (*string)(&ev.Kind), &posMs, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		ev.Position = time.Duration(posMs) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
