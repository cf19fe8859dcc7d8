// Package assets persists the user's saved generations and uploaded
// media. The library index lives in SQLite; artifact bytes live on disk
// under a files directory served by the HTTP layer.
package assets

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Library errors.
var (
	// ErrLibraryClosed is returned when operating on a closed library.
	ErrLibraryClosed = errors.New("assets: library is closed")

	// ErrEntryNotFound is returned when the requested entry does not exist.
	ErrEntryNotFound = errors.New("assets: entry not found")
)

// Entry is one saved artifact in the library.
type Entry struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"sourceUrl"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// Library is the SQLite-backed index of saved artifacts.
// It is suitable for single-process production use.
type Library struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// OpenLibrary opens (creating if needed) the library database at path.
// Use ":memory:" for testing.
func OpenLibrary(path string) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL gives better concurrent read behavior under the HTTP handlers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS library (
			id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'image',
			created_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_library_category
		ON library(category)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Library{db: db}, nil
}

// Save inserts an entry. A zero ID gets a fresh UUID; a zero CreatedAt
// gets the current time. The stored entry is returned.
func (l *Library) Save(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{}, ErrLibraryClosed
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = "image"
	}

	_, err := l.db.Exec(`
		INSERT INTO library (id, source_url, name, category, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_url = excluded.source_url,
			name = excluded.name,
			category = excluded.category,
			kind = excluded.kind
	`, e.ID, e.SourceURL, e.Name, e.Category, e.Kind, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("save entry: %w", err)
	}
	return e, nil
}

// List returns entries newest first, optionally filtered by category.
// An empty category returns everything.
func (l *Library) List(category string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrLibraryClosed
	}

	query := `
		SELECT id, source_url, name, category, kind, created_at
		FROM library
	`
	args := []any{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC"

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SourceURL, &e.Name, &e.Category, &e.Kind, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry by id.
func (l *Library) Get(id string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return Entry{}, ErrLibraryClosed
	}

	var e Entry
	var created string
	err := l.db.QueryRow(`
		SELECT id, source_url, name, category, kind, created_at
		FROM library WHERE id = ?
	`, id).Scan(&e.ID, &e.SourceURL, &e.Name, &e.Category, &e.Kind, &created)
	if err == sql.ErrNoRows {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

// Delete removes an entry by id.
func (l *Library) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLibraryClosed
	}

	res, err := l.db.Exec(`DELETE FROM library WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Close closes the underlying database. Subsequent calls are no-ops.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
