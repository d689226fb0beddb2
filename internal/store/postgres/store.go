package postgres

import (
	"context"
	"errors"

	"microsight/dashboard-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS local_storage (
			storage_key TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", store.ErrInvalidKey
	}
	var value string
	row := s.pool.QueryRow(ctx, `
		SELECT value
		FROM local_storage
		WHERE storage_key = $1
	`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, entries ...store.Entry) (err error) {
	for _, entry := range entries {
		if entry.Key == "" {
			return store.ErrInvalidKey
		}
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, entry := range entries {
		_, err = tx.Exec(ctx, `
			INSERT INTO local_storage (storage_key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (storage_key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = NOW()
		`, entry.Key, entry.Value)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM local_storage
		WHERE storage_key = ANY($1)
	`, keys)
	return err
}
