package bolt

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/tailscale/accessbot/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()

	s, err := Open(filepath.Join(tmpDir, "state.db"), slog.Default())
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

	require.NoError(t, s.Put(ctx, rec))

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

func TestStore_ExpiredRecordIsDeleted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Record{
		Key:       "stale",
		Value:     []byte("payload"),
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, err := s.Get(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Lazy delete removed the record from disk.
	var raw []byte
	_ = s.db.View(func(tx *bbolt.Tx) error {
		raw = tx.Bucket(recordsBucket).Get([]byte("stale"))
		return nil
	})
	assert.Nil(t, raw)
}

func TestStore_ZeroExpiryNeverExpires(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Record{Key: "forever", Value: []byte("v")}))

	got, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.IsZero())
}
