// Package registry records every dataset download in a SQLite database: the
// cached path, the observed SHA-256 and the extracted archive members. The
// first hash seen for a URL becomes its trust-on-first-use pin.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	url        TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	sha256     TEXT NOT NULL,
	size       INTEGER NOT NULL,
	fetched_at TEXT NOT NULL,
	members    TEXT NOT NULL DEFAULT '[]'
)`

// Entry is one cached download.
type Entry struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
	Members   []string  `json:"members,omitempty"`
}

// Registry is a SQLite-backed download log.
type Registry struct {
	db *sql.DB
}

// Open opens or creates the registry database at path.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	// Several processes may share one cache directory.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Record inserts or replaces the entry for e.URL.
func (r *Registry) Record(ctx context.Context, e Entry) error {
	members, err := json.Marshal(e.Members)
	if err != nil {
		return err
	}
	if e.Members == nil {
		members = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO downloads (url, path, sha256, size, fetched_at, members)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			path = excluded.path,
			sha256 = excluded.sha256,
			size = excluded.size,
			fetched_at = excluded.fetched_at,
			members = excluded.members`,
		e.URL, e.Path, e.SHA256, e.Size, e.FetchedAt.UTC().Format(time.RFC3339Nano), string(members))
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.URL, err)
	}
	return nil
}

// Lookup returns the entry for url. ok is false when none exists.
func (r *Registry) Lookup(ctx context.Context, url string) (e Entry, ok bool, err error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT url, path, sha256, size, fetched_at, members FROM downloads WHERE url = ?`, url)
	e, err = scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up %s: %w", url, err)
	}
	return e, true, nil
}

// List returns all entries ordered by URL.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url, path, sha256, size, fetched_at, members FROM downloads ORDER BY url`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the entry for url.
func (r *Registry) Delete(ctx context.Context, url string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE url = ?`, url); err != nil {
		return fmt.Errorf("failed to delete %s: %w", url, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Entry, error) {
	var (
		e         Entry
		fetchedAt string
		members   string
	)
	if err := s.Scan(&e.URL, &e.Path, &e.SHA256, &e.Size, &fetchedAt, &members); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid fetched_at %q: %w", fetchedAt, err)
	}
	e.FetchedAt = t
	if err := json.Unmarshal([]byte(members), &e.Members); err != nil {
		return Entry{}, fmt.Errorf("invalid members for %s: %w", e.URL, err)
	}
	return e, nil
}
