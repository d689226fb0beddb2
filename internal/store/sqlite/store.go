package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"microsight/dashboard-service/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the storage database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the service read while dashctl writes to the same file.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS local_storage (
		storage_key TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", store.ErrInvalidKey
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE storage_key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("read %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, entries ...store.Entry) error {
	for _, entry := range entries {
		if entry.Key == "" {
			return store.ErrInvalidKey
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO local_storage (storage_key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, entry.Key, entry.Value)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %q: %w", entry.Key, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE storage_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
