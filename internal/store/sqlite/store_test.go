package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microsight/dashboard-service/internal/store"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "storage.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.Get(ctx, "user")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx,
		store.Entry{Key: "token", Value: "mock-token"},
		store.Entry{Key: "user", Value: `{"id":"1"}`},
	))
	value, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, value)

	require.NoError(t, s.Set(ctx, store.Entry{Key: "user", Value: `{"id":"2"}`}))
	value, err = s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"2"}`, value)

	require.NoError(t, s.Delete(ctx, "token", "user", "never-written"))
	_, err = s.Get(ctx, "token")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Get(ctx, "user")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	require.NoError(t, s.Set(ctx, store.Entry{Key: "token", Value: "persisted"}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "persisted", value)
}

func TestScopedOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	scoped := store.Scoped(s, "client-1")
	require.NoError(t, scoped.Set(ctx, store.Entry{Key: "token", Value: "x"}))

	raw, err := s.Get(ctx, "client-1/token")
	require.NoError(t, err)
	assert.Equal(t, "x", raw)
}
