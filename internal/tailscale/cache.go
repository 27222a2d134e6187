package tailscale

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tailscale/accessbot/internal/store"
)

// maxCacheBody is the largest response body the cache will store. The
// backing store has a per-item size ceiling, and the other record
// fields need a little of it.
const maxCacheBody = 400_000

var errCacheMiss = errors.New("cache miss")

// cachePayload is the serialized form of a cached response.
type cachePayload struct {
	Status  int         `json:"status"`
	Headers http.Header `json:"headers"`
	Body    []byte      `json:"body"`
}

// responseCache is a best-effort TTL cache of successful GET responses,
// sharing the token manager's store under a distinct key scheme. It is
// a latency optimization only: every lookup races a live request that
// always refreshes the cache, and any store failure is just a miss.
type responseCache struct {
	kv     store.KV
	logger *slog.Logger
}

// get reads a cached response. Missing, malformed, and expired entries
// are all reported as errCacheMiss; stale data is never returned.
func (c *responseCache) get(ctx context.Context, key string) (*Response, error) {
	rec, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("Cache read failed", "key", key, "error", err)
		}
		return nil, errCacheMiss
	}

	// The store filters expiry on read, but check again so a backend
	// with lazy reaping can never serve stale data.
	if rec.Expired(time.Now()) {
		return nil, errCacheMiss
	}

	var payload cachePayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		c.logger.Warn("Malformed cache entry", "key", key, "error", err)
		return nil, errCacheMiss
	}

	c.logger.Debug("Cache hit", "key", key, "status", payload.Status)

	return &Response{
		Status: payload.Status,
		Header: payload.Headers,
		Body:   payload.Body,
	}, nil
}

// put writes a response to the cache. Only 200/201 responses within the
// size ceiling are cached; everything else is a no-op. Write failures
// are logged and dropped.
func (c *responseCache) put(ctx context.Context, key string, ttl time.Duration, resp *Response) {
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		c.logger.Debug("Cache skip", "key", key, "status", resp.Status)
		return
	}
	if len(resp.Body) > maxCacheBody {
		c.logger.Debug("Cache skip", "key", key, "len", len(resp.Body), "reason", "too large")
		return
	}

	data, err := json.Marshal(cachePayload{
		Status:  resp.Status,
		Headers: resp.Header,
		Body:    resp.Body,
	})
	if err != nil {
		c.logger.Error("Failed to encode cache entry", "key", key, "error", err)
		return
	}

	err = c.kv.Put(ctx, store.Record{
		Key:       key,
		Value:     data,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		c.logger.Error("Cache write failed", "key", key, "len", len(resp.Body), "error", err)
		return
	}

	c.logger.Debug("Cache updated", "key", key, "len", len(resp.Body))
}

// fetch issues the live request and races the cache lookup against its
// completion; the first success wins. The live response always
// refreshes the cache in the background, whichever side won. If both
// sides fail, the live error is returned.
func (c *responseCache) fetch(ctx context.Context, key string, ttl time.Duration, do func() (*Response, error)) (*Response, error) {
	type liveResult struct {
		resp *Response
		err  error
	}

	liveCh := make(chan liveResult, 1)
	go func() {
		resp, err := do()
		liveCh <- liveResult{resp, err}

		if err == nil {
			// Detached write-back: the caller may have already returned
			// with the cached copy.
			wctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			c.put(wctx, key, ttl, resp)
		}
	}()

	cacheCh := make(chan *Response, 1)
	go func() {
		resp, err := c.get(ctx, key)
		if err != nil {
			resp = nil
		}
		cacheCh <- resp
	}()

	var liveErr error
	for cacheCh != nil || liveCh != nil {
		select {
		case resp := <-cacheCh:
			if resp != nil {
				return resp, nil
			}
			cacheCh = nil
		case lr := <-liveCh:
			if lr.err == nil {
				return lr.resp, nil
			}
			liveErr = lr.err
			liveCh = nil
		}
	}

	return nil, liveErr
}
