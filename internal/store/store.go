// Package store owns the SQLite system-of-record: connection setup and
// schema migration. Repositories under internal/repository issue queries
// against the *sql.DB it exposes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for repositories.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", domain.ErrStoreFailure, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the schema. Statements are idempotent so repeated runs
// are safe.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS institutions (
            openalex_id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            display_name TEXT,
            country_code TEXT,
            country TEXT,
            city TEXT,
            region TEXT,
            type TEXT,
            homepage_url TEXT,
            ror_id TEXT,
            works_count INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS advisors (
            openalex_id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            display_name TEXT,
            institution_id TEXT,
            works_count INTEGER NOT NULL DEFAULT 0,
            cited_by_count INTEGER NOT NULL DEFAULT 0,
            h_index INTEGER NOT NULL DEFAULT 0,
            i10_index INTEGER NOT NULL DEFAULT 0,
            concepts TEXT,
            research_summary TEXT,
            orcid TEXT,
            homepage_url TEXT,
            embedding TEXT,
            created_at TEXT NOT NULL,
            last_updated TEXT NOT NULL,
            FOREIGN KEY(institution_id) REFERENCES institutions(openalex_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_advisors_institution ON advisors(institution_id);`,
		`CREATE TABLE IF NOT EXISTS profiles (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            full_name TEXT,
            education_level TEXT,
            field_of_study TEXT,
            research_interests TEXT,
            resume_text TEXT,
            resume_embedding TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w: %w", domain.ErrStoreFailure, err)
		}
	}
	return nil
}
