package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale/accessbot/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestStore_PutGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := store.Record{
		Key:       "client-123",
		Value:     []byte(`{"access_token":"tskey-abc"}`),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	err := s.Put(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, "client-123")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, rec.Value, got.Value)
	assert.Equal(t, rec.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func TestStore_GetNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_PutReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Record{Key: "k", Value: []byte("old")}))
	require.NoError(t, s.Put(ctx, store.Record{Key: "k", Value: []byte("new")}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Value)
}

func TestStore_ExpiredRecordIsNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, store.Record{
		Key:       "stale",
		Value:     []byte("payload"),
		ExpiresAt: time.Now().Add(-time.Second),
	})
	require.NoError(t, err)

	_, err = s.Get(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ZeroExpiryNeverExpires(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Record{Key: "forever", Value: []byte("v")}))

	got, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestStore_Purge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Record{
		Key:       "expired",
		Value:     []byte("v"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, s.Put(ctx, store.Record{
		Key:       "live",
		Value:     []byte("v"),
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	require.NoError(t, s.purge())

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
