package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by State.Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// State is a small durable key/value map for transport cursors such as the
// Telegram update offset and the Matrix next_batch token.
// Implementations must be safe for concurrent use.
type State interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type sqliteState struct {
	s *Store
}

// NewState returns a State backed by the state table.
func NewState(s *Store) State {
	return &sqliteState{s: s}
}

func (st *sqliteState) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := st.s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts key and stamps updated_at with the current UTC time.
func (st *sqliteState) Set(ctx context.Context, key, value string) error {
	_, err := st.s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Delete is a no-op for missing keys.
func (st *sqliteState) Delete(ctx context.Context, key string) error {
	if _, err := st.s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}
