package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/supabase"
)

// TokenStorage keeps the auth client's session under a single key of the
// key-value store.
type TokenStorage struct {
	store kvstore.Store
	key   string
}

var _ supabase.TokenStorage = (*TokenStorage)(nil)

// NewTokenStorage returns a token storage writing to key.
func NewTokenStorage(store kvstore.Store, key string) *TokenStorage {
	return &TokenStorage{store: store, key: key}
}

// Key returns the key the session is stored under.
func (t *TokenStorage) Key() string { return t.key }

// Load returns the stored session, or nil if there is none. An unreadable
// value is treated as absent.
func (t *TokenStorage) Load(ctx context.Context) (*supabase.Session, error) {
	values, err := t.store.Get(ctx, t.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth token: %w", err)
	}
	raw, ok := values[t.key]
	if !ok || raw == "" {
		return nil, nil
	}
	var s supabase.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save stores s.
func (t *TokenStorage) Save(ctx context.Context, s *supabase.Session) error {
	if s == nil {
		return t.Clear(ctx)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode auth token: %w", err)
	}
	return t.store.Set(ctx, map[string]string{t.key: string(raw)})
}

// Clear removes the stored session.
func (t *TokenStorage) Clear(ctx context.Context) error {
	return t.store.Remove(ctx, t.key)
}
