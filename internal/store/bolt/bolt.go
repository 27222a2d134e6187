package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/tailscale/accessbot/internal/store"

	bbolt "go.etcd.io/bbolt"
)

const (
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var recordsBucket = []byte("records")

// record is the on-disk shape of a store.Record.
type record struct {
	Key       string `json:"key"`
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// Store implements store.KV on a single bbolt file. Expiry is enforced
// on read: expired records are deleted lazily rather than by a reaper.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens the store database at the given path, creating it if it
// does not exist.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := bbolt.Open(path, filePerm, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Get returns the record for key, or store.ErrNotFound. An expired
// record is removed and reported as not found.
func (s *Store) Get(ctx context.Context, key string) (*store.Record, error) {
	var rec *store.Record
	expired := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}

		var r record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decoding record %s: %w", key, err)
		}

		if r.ExpiresAt != 0 && !time.Unix(r.ExpiresAt, 0).After(time.Now()) {
			expired = true
			return nil
		}

		rec = &store.Record{Key: r.Key, Value: r.Value}
		if r.ExpiresAt != 0 {
			rec.ExpiresAt = time.Unix(r.ExpiresAt, 0)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		if err := s.delete(key); err != nil {
			s.logger.Warn("Failed to delete expired record", "key", key, "error", err)
		}
		return nil, store.ErrNotFound
	}

	if rec == nil {
		return nil, store.ErrNotFound
	}

	return rec, nil
}

// Put writes or replaces the record for rec.Key
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	r := record{Key: rec.Key, Value: rec.Value}
	if !rec.ExpiresAt.IsZero() {
		r.ExpiresAt = rec.ExpiresAt.Unix()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(rec.Key), data)
	})
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
}
