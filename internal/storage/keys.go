package storage

import (
	"context"
	"strings"
)

// KeyStore resolves provider API keys: a key saved in the database wins,
// otherwise the configured fallback is used.
type KeyStore struct {
	db       *Database
	fallback map[string]string
}

// NewKeyStore creates a key store. fallback maps provider names to keys
// from configuration and may be nil.
func NewKeyStore(db *Database, fallback map[string]string) *KeyStore {
	return &KeyStore{db: db, fallback: fallback}
}

// APIKey returns the key for provider, or "" when none is configured
func (k *KeyStore) APIKey(ctx context.Context, provider string) (string, error) {
	if k.db != nil {
		key, err := k.db.StoredAPIKey(ctx, provider)
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	return strings.TrimSpace(k.fallback[provider]), nil
}

// SetAPIKey saves a key in the database
func (k *KeyStore) SetAPIKey(ctx context.Context, provider, key string) error {
	return k.db.SetAPIKey(ctx, provider, key)
}

// HasAPIKey reports whether any key is available for provider
func (k *KeyStore) HasAPIKey(ctx context.Context, provider string) bool {
	key, err := k.APIKey(ctx, provider)
	return err == nil && key != ""
}
