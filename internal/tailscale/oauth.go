package tailscale

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tailscale/accessbot/internal/store"
)

const persistTimeout = 10 * time.Second

// tokenRecord is the persisted shape of an OAuth2 token, keyed in the
// store by the client id it was issued to.
type tokenRecord struct {
	ClientID     string `json:"client_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// newTokenSource builds the client-credentials token source for the
// given credentials, seeded with any token persisted by an earlier
// invocation. Store failures are never fatal: they degrade to a fresh
// grant against the token endpoint.
func newTokenSource(ctx context.Context, cfg Config, kv store.KV, logger *slog.Logger) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/oauth/token",
	}

	return &persistingTokenSource{
		grant:    cc.TokenSource(ctx),
		kv:       kv,
		clientID: cfg.ClientID,
		logger:   logger,
		tok:      loadToken(ctx, kv, cfg.ClientID, logger),
	}
}

// persistingTokenSource caches the current token in memory for the
// lifetime of one invocation and writes every newly obtained token back
// to the store so later invocations reuse it instead of
// re-authenticating. Persistence is best-effort and detached: a failed
// write is logged and dropped, never surfaced to the in-flight request.
type persistingTokenSource struct {
	grant    oauth2.TokenSource
	kv       store.KV
	clientID string
	logger   *slog.Logger

	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok, nil
	}

	tok, err := s.grant.Token()
	if err != nil {
		return nil, err
	}

	s.tok = tok
	go s.persist(tok)

	return tok, nil
}

// persist writes the token record to the store. The record carries the
// token expiry as its own expiry, so the store reaps it once useless; a
// later invocation simply runs a fresh grant and recreates it.
func (s *persistingTokenSource) persist(tok *oauth2.Token) {
	rec := tokenRecord{
		ClientID:     s.clientID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		rec.ExpiresAt = tok.Expiry.Unix()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("Failed to encode access token", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err = s.kv.Put(ctx, store.Record{
		Key:       s.clientID,
		Value:     data,
		ExpiresAt: tok.Expiry,
	})
	if err != nil {
		s.logger.Error("Failed to persist access token", "client_id", s.clientID, "error", err)
		return
	}

	s.logger.Debug("Persisted access token", "client_id", s.clientID, "expires_at", tok.Expiry)
}

// loadToken reads a previously persisted token for the client id. Any
// failure (absent, expired, malformed) is treated as no cached token.
func loadToken(ctx context.Context, kv store.KV, clientID string, logger *slog.Logger) *oauth2.Token {
	rec, err := kv.Get(ctx, clientID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to read token from store", "client_id", clientID, "error", err)
		}
		return nil
	}

	var tr tokenRecord
	if err := json.Unmarshal(rec.Value, &tr); err != nil {
		logger.Warn("Malformed token record in store", "client_id", clientID, "error", err)
		return nil
	}
	if tr.AccessToken == "" {
		return nil
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
	}
	if tr.ExpiresAt != 0 {
		tok.Expiry = time.Unix(tr.ExpiresAt, 0)
	}
	return tok
}
