// Package contacts resolves sender ids to display names. Names come from the
// config contacts table first, then a local SQLite cache, then a daemon
// lookup whose result is written back to the cache.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"signalmail/internal/domain"
)

// Store is the contact-name cache backed by SQLite.
type Store struct {
	db     *sql.DB
	static map[string]string // config contacts table, read-only
	logger *slog.Logger
}

func NewStore(dbPath string, static map[string]string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, static: static, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Resolver produces a name lookup bound to the daemon client. The returned
// Store methods use it to refresh cache entries.
type Resolver struct {
	store     *Store
	messenger domain.Messenger
}

func NewResolver(store *Store, messenger domain.Messenger) *Resolver {
	return &Resolver{store: store, messenger: messenger}
}

// Resolve returns the display name for id, or "" when no source knows it.
// Lookup failures degrade to cached/configured values, never to an error:
// the caller treats an empty name as "unknown".
func (r *Resolver) Resolve(ctx context.Context, id string) string {
	if name, ok := r.store.static[id]; ok && name != "" {
		return name
	}

	if name, err := r.store.cachedName(ctx, id); err == nil && name != "" {
		return name
	}

	name, err := r.messenger.ContactName(ctx, id)
	if err != nil {
		r.store.logger.Warn("contact name lookup failed", "id", id, "err", err)
		return ""
	}
	if name != "" {
		if err := r.store.remember(ctx, id, name); err != nil {
			r.store.logger.Warn("contact cache write failed", "id", id, "err", err)
		}
	}
	return name
}

func (s *Store) cachedName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM contacts WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) remember(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
		id, name,
	)
	return err
}
