package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"microsight/dashboard-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	if _, err := st.Get(ctx, "token"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.Set(ctx, store.Entry{Key: "token", Value: "mock"}, store.Entry{Key: "user", Value: `{"id":"1"}`}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.Set(ctx, store.Entry{Key: "user", Value: `{"id":"2"}`}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, err := st.Get(ctx, "user")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"id":"2"}` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := st.Delete(ctx, "token", "user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range []string{"token", "user"} {
		if _, err := st.Get(ctx, key); err != store.ErrNotFound {
			t.Fatalf("expected %s to be removed, got %v", key, err)
		}
	}
}

func TestSetRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	err := st.Set(ctx, store.Entry{Key: "token", Value: "x"}, store.Entry{Key: ""})
	if err != store.ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := st.Get(ctx, "token"); err != store.ErrNotFound {
		t.Fatalf("expected no partial write, got %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return st, cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
