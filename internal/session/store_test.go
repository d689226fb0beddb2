package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/role"
	"microsight/dashboard-service/internal/store"
)

func TestInitializeWithoutRecord(t *testing.T) {
	ctx := context.Background()
	p := NewPersistent(store.NewMemory(), nil)
	assert.False(t, p.Ready())

	require.NoError(t, p.Initialize(ctx))
	assert.True(t, p.Ready())
	_, ok := p.Get()
	assert.False(t, ok)
}

func TestInitializeNormalizesAndWritesBack(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx,
		store.Entry{Key: TokenKey, Value: "mock-jwt-token"},
		store.Entry{Key: UserKey, Value: `{"id":"1","email":"lab@uni.edu","name":"lab","role":"analyst","staffId":"S-9"}`},
	))

	p := NewPersistent(kv, nil)
	require.NoError(t, p.Initialize(ctx))

	s, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, role.Researcher, s.Role)
	assert.Equal(t, "mock-jwt-token", s.Token)
	assert.Equal(t, "S-9", s.Profile.StaffID)

	raw, err := kv.Get(ctx, UserKey)
	require.NoError(t, err)
	var record models.UserRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	assert.Equal(t, "researcher", record.Role)
	assert.Equal(t, "S-9", record.StaffID)
}

func TestInitializeUnknownRoleDefaultsToUser(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, store.Entry{Key: UserKey, Value: `{"id":"1","email":"x@y.z","role":"superuser"}`}))

	p := NewPersistent(kv, nil)
	require.NoError(t, p.Initialize(ctx))
	s, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, role.User, s.Role)
	assert.Empty(t, s.Token)
}

func TestCorruptRecordEqualsLoggedOutState(t *testing.T) {
	for name, raw := range map[string]string{
		"invalid json": `{"id":`,
		"null":         `null`,
		"wrong type":   `"just a string"`,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemory()
			require.NoError(t, kv.Set(ctx,
				store.Entry{Key: TokenKey, Value: "mock"},
				store.Entry{Key: UserKey, Value: raw},
			))

			p := NewPersistent(kv, nil)
			require.NoError(t, p.Initialize(ctx))

			loggedOutKV := store.NewMemory()
			require.NoError(t, loggedOutKV.Set(ctx, store.Entry{Key: TokenKey, Value: "mock"}))
			loggedOut := NewPersistent(loggedOutKV, nil)
			require.NoError(t, loggedOut.Clear(ctx))

			got, ok := p.Get()
			want, wantOK := loggedOut.Get()
			assert.Equal(t, wantOK, ok)
			assert.Equal(t, want, got)
			assert.True(t, p.Ready())
			assert.Equal(t, loggedOutKV.Len(), kv.Len())
			assert.Equal(t, 0, kv.Len())
		})
	}
}

func TestSetPersistsBothKeysAndClearRemovesThem(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	p := NewPersistent(kv, nil)
	require.NoError(t, p.Initialize(ctx))

	require.NoError(t, p.Set(ctx, models.Session{
		UserID: "u-1", Email: "a@b.edu", DisplayName: "a", Role: "staff", Token: "tok",
	}))
	s, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, role.Researcher, s.Role)

	token, err := kv.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	raw, err := kv.Get(ctx, UserKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "tok")

	require.NoError(t, p.Clear(ctx))
	_, ok = p.Get()
	assert.False(t, ok)
	_, err = kv.Get(ctx, TokenKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = kv.Get(ctx, UserKey)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, p.Clear(ctx))
}

func TestSessionSurvivesReload(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	first := NewPersistent(kv, nil)
	require.NoError(t, first.Initialize(ctx))
	require.NoError(t, first.Set(ctx, models.Session{UserID: "u-1", Email: "admin@x.io", Role: role.Admin, Token: "t"}))

	second := NewPersistent(kv, nil)
	require.NoError(t, second.Initialize(ctx))
	s, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, role.Admin, s.Role)
	assert.Equal(t, "t", s.Token)
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", f.err
}

func TestInitializeReadErrorIsReturned(t *testing.T) {
	boom := errors.New("disk gone")
	p := NewPersistent(failingStore{Store: store.NewMemory(), err: boom}, nil)
	err := p.Initialize(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, p.Ready())
	_, ok := p.Get()
	assert.False(t, ok)
}

type failingDelete struct {
	store.Store
	err error
}

func (f failingDelete) Delete(ctx context.Context, keys ...string) error {
	return f.err
}

func TestClearFailureKeepsMemoryAndStorageInStep(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	boom := errors.New("read-only volume")
	p := NewPersistent(failingDelete{Store: kv, err: boom}, nil)
	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Set(ctx, models.Session{UserID: "u-1", Email: "a@x.io", Role: role.User, Token: "t"}))

	require.ErrorIs(t, p.Clear(ctx), boom)
	_, ok := p.Get()
	assert.True(t, ok)

	reloaded := NewPersistent(kv, nil)
	require.NoError(t, reloaded.Initialize(ctx))
	_, ok = reloaded.Get()
	assert.True(t, ok)
}
