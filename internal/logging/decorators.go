package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/tailscale/accessbot/internal/store"
)

// KVLogger wraps a store.KV and logs all method calls
type KVLogger struct {
	kv     store.KV
	logger *slog.Logger
}

// NewKVLogger creates a new logging decorator for a store.KV
func NewKVLogger(kv store.KV, logger *slog.Logger) store.KV {
	return &KVLogger{
		kv:     kv,
		logger: logger.With("interface", "KV"),
	}
}

func (l *KVLogger) Get(ctx context.Context, key string) (*store.Record, error) {
	start := time.Now()

	rec, err := l.kv.Get(ctx, key)
	duration := time.Since(start)

	if err != nil {
		// Not-found is the common path for cache lookups, keep it quiet.
		if err == store.ErrNotFound {
			l.logger.Debug("Get miss",
				"key", key,
				"duration", duration)
			return nil, err
		}
		l.logger.Error("Get failed",
			"key", key,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Debug("Get completed",
		"key", key,
		"bytes", len(rec.Value),
		"duration", duration)

	return rec, nil
}

func (l *KVLogger) Put(ctx context.Context, rec store.Record) error {
	start := time.Now()

	err := l.kv.Put(ctx, rec)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("Put failed",
			"key", rec.Key,
			"bytes", len(rec.Value),
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Debug("Put completed",
		"key", rec.Key,
		"bytes", len(rec.Value),
		"expires_at", rec.ExpiresAt,
		"duration", duration)

	return nil
}

func (l *KVLogger) Close() error {
	err := l.kv.Close()
	if err != nil {
		l.logger.Error("Close failed", "error", err)
		return err
	}

	l.logger.Debug("Close completed")
	return nil
}
