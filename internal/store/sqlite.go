package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// StateStore persists small UI state blobs (layout, selected section,
// watchlist order) keyed by name. Values are opaque JSON written by the
// HTTP layer.
type StateStore struct {
	db  *sql.DB
	log *slog.Logger
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS ui_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// NewStateStore opens (creating if needed) the SQLite database at dbPath.
func NewStateStore(dbPath string, log *slog.Logger) (*StateStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ui_state schema: %w", err)
	}
	return &StateStore{db: db, log: log}, nil
}

// Save upserts the value for key.
func (s *StateStore) Save(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ui_state (key, value, updated_at)
		VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("save ui_state %s: %w", key, err)
	}
	s.log.Debug("ui state saved", "key", key, "bytes", len(value))
	return nil
}

// Load returns the stored value for key, or "" with no error when the key
// has never been saved.
func (s *StateStore) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ui_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load ui_state %s: %w", key, err)
	}
	return value, nil
}

// Keys lists all stored state keys.
func (s *StateStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM ui_state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list ui_state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes the value for key. Deleting a missing key is not an error.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ui_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete ui_state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}
