// Package incident persists deduplicated fault incidents to SQLite.
//
// One row exists per diagnostic fingerprint. The store is the only
// authoritative mutation point for occurrence counts: concurrent reporters
// are serialized by the primary-key constraint inside a single upsert, never
// by application-level locking.
package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/faultline/faultline/pkg/fingerprint"
)

// ErrNotFound is returned by lookups that match no incident.
var ErrNotFound = errors.New("incident not found")

// Store persists incidents to SQLite
type Store struct {
	db   *sql.DB
	path string
}

// StoreConfig configures the incident store
type StoreConfig struct {
	Path     string // Path to SQLite database file
	MaxConns int    // Connection pool cap (0 = driver default)
}

// NewStore opens (creating if needed) the incident database
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	store := &Store{
		db:   db,
		path: cfg.Path,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS incidents (
			fingerprint      BLOB PRIMARY KEY,
			diagnostic       TEXT NOT NULL,
			notification_ref TEXT NOT NULL,
			occurrences      INTEGER NOT NULL DEFAULT 1,
			first_seen       TIMESTAMP NOT NULL,
			last_seen        TIMESTAMP NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_ref ON incidents(notification_ref);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// RecordOccurrence atomically inserts a new incident or increments an
// existing one. On insert the candidate notification ref becomes the
// incident's ref and created is true. On conflict the count is incremented
// and the row's existing ref is returned; the candidate is ignored and the
// caller owns reconciling the notification it speculatively published.
func (s *Store) RecordOccurrence(ctx context.Context, fp fingerprint.Fingerprint, diagnostic, candidateRef string) (ref string, count int64, created bool, err error) {
	now := time.Now().UTC()

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO incidents (fingerprint, diagnostic, notification_ref, occurrences, first_seen, last_seen)
		VALUES (?, ?, ?, 1, ?, ?)

		ON CONFLICT (fingerprint)
		DO UPDATE SET occurrences = incidents.occurrences + 1, last_seen = excluded.last_seen
		RETURNING notification_ref, occurrences
	`, fp.Bytes(), diagnostic, candidateRef, now, now).Scan(&ref, &count)
	if err != nil {
		return "", 0, false, fmt.Errorf("record occurrence: %w", err)
	}

	return ref, count, count == 1, nil
}

// IncrementKnown increments the occurrence count of an existing incident
// and returns its notification ref and new count. ok is false when no
// incident exists for the fingerprint; nothing is recorded in that case.
func (s *Store) IncrementKnown(ctx context.Context, fp fingerprint.Fingerprint) (ref string, count int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		UPDATE incidents SET occurrences = occurrences + 1, last_seen = ?
		WHERE fingerprint = ?
		RETURNING notification_ref, occurrences
	`, time.Now().UTC(), fp.Bytes()).Scan(&ref, &count)

	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("increment incident: %w", err)
	}

	return ref, count, true, nil
}

// LookupDiagnostic returns the full diagnostic text for the incident
// represented by the given notification ref. Returns ErrNotFound when no
// incident owns the ref.
func (s *Store) LookupDiagnostic(ctx context.Context, ref string) (string, error) {
	var diagnostic string
	err := s.db.QueryRowContext(ctx,
		"SELECT diagnostic FROM incidents WHERE notification_ref = ?",
		ref,
	).Scan(&diagnostic)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup diagnostic: %w", err)
	}

	return diagnostic, nil
}

// Stats holds aggregate counters over the incident table
type Stats struct {
	Incidents        int64 `json:"incidents"`
	TotalOccurrences int64 `json:"total_occurrences"`
}

// Stats returns aggregate statistics about stored incidents
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(occurrences), 0) FROM incidents",
	).Scan(&stats.Incidents, &stats.TotalOccurrences)
	if err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}
