package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailscale/accessbot/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

const purgeInterval = 10 * time.Minute

// Store implements store.KV using SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	done   chan struct{}
}

// New creates a new SQLite store instance and starts the background
// purge loop that reaps expired records.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Avoid SQLITE_BUSY from concurrent invocation handlers.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	go s.purgeLoop()

	return s, nil
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Get returns the record for key. Records past their expiry are treated
// as absent even if the purge loop has not reaped them yet.
func (s *Store) Get(ctx context.Context, key string) (*store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, value, expires_at FROM kv
		WHERE key = ? AND (expires_at = 0 OR expires_at > ?)
	`, key, time.Now().Unix())

	var rec store.Record
	var expiresAt int64
	if err := row.Scan(&rec.Key, &rec.Value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record %s: %w", key, err)
	}

	if expiresAt != 0 {
		rec.ExpiresAt = time.Unix(expiresAt, 0)
	}

	return &rec, nil
}

// Put writes or replaces the record for rec.Key
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	var expiresAt int64
	if !rec.ExpiresAt.IsZero() {
		expiresAt = rec.ExpiresAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv (key, value, expires_at) VALUES (?, ?, ?)
	`, rec.Key, rec.Value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to put record %s: %w", rec.Key, err)
	}

	return nil
}

// Close stops the purge loop and closes the database
func (s *Store) Close() error {
	close(s.done)
	return s.db.Close()
}

// purgeLoop periodically deletes expired records
func (s *Store) purgeLoop() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.purge(); err != nil {
				s.logger.Warn("Failed to purge expired records", "error", err)
			}
		}
	}
}

func (s *Store) purge() error {
	res, err := s.db.Exec(`DELETE FROM kv WHERE expires_at != 0 AND expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("Purged expired records", "count", n)
	}

	return nil
}
