// Package store is the single source of truth for tasks, vacancies,
// employers, plugin results, process registry entries, system health
// samples, and log records. It wraps a single embedded SQLite database
// file opened in WAL mode.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Config configures the embedded store.
type Config struct {
	// Path is a local filesystem path to the database file, or ":memory:".
	Path string
	// BusyTimeout bounds how long a reader waits behind a writer.
	BusyTimeout time.Duration
}

// Store owns the single *sql.DB handle and all persistence operations.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the embedded database, applies WAL mode
// and busy_timeout, and runs migrations before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// A single connection serializes writers at the transaction level, per
	// the store's "single-writer DB" contract; WAL still lets external
	// readers (e.g. a sqlite3 CLI) proceed lock-free.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: enable WAL: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 30 * time.Second
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	// Foreign keys are left unenforced: a vacancy may reference an employer
	// that load_employers has not fetched yet (see GetMissingEmployerIDs).

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers (e.g. cleanup's VACUUM) that
// need raw access outside the typed operations below.
func (s *Store) DB() *sql.DB {
	return s.db
}

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}
