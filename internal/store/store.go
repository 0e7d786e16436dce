// Package store persists templates and captured items in a local SQLite
// database, so capture sessions survive restarts and sync retries.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applies connection pragmas,
// and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Store opened")
	return s, nil
}

// OpenInMemory opens a throwaway database, used in tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			source_url  TEXT NOT NULL DEFAULT '',
			fields      TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id     TEXT NOT NULL DEFAULT '',
			restaurant_id TEXT NOT NULL DEFAULT '',
			collection_id TEXT NOT NULL DEFAULT '',
			source_id     TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			price         TEXT NOT NULL DEFAULT '',
			currency      TEXT NOT NULL DEFAULT '',
			image_url     TEXT NOT NULL DEFAULT '',
			page_url      TEXT NOT NULL DEFAULT '',
			captured_at   TIMESTAMP NOT NULL,
			synced_at     TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_scope
			ON items (restaurant_id, collection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_remote
			ON items (remote_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
