package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, Entry{Key: "token", Value: "t-1"}, Entry{Key: "user", Value: "{}"}))
	value, err := m.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "t-1", value)

	require.NoError(t, m.Delete(ctx, "token", "user", "missing"))
	assert.Equal(t, 0, m.Len())
}

func TestMemoryRejectsEmptyKeyWithoutPartialWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.Set(ctx, Entry{Key: "token", Value: "t-1"}, Entry{Key: "", Value: "x"})
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, 0, m.Len())
}

func TestScopedIsolatesClients(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := Scoped(base, "client-a")
	b := Scoped(base, "client-b")

	require.NoError(t, a.Set(ctx, Entry{Key: "token", Value: "a"}))
	require.NoError(t, b.Set(ctx, Entry{Key: "token", Value: "b"}))

	value, err := a.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "a", value)

	raw, err := base.Get(ctx, "client-b/token")
	require.NoError(t, err)
	assert.Equal(t, "b", raw)

	require.NoError(t, a.Delete(ctx, "token"))
	_, err = a.Get(ctx, "token")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = b.Get(ctx, "token")
	require.NoError(t, err)
}
