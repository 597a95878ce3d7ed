package revocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryStore keeps revocations in process memory. Suitable for single-instance deployments and tests.
type MemoryStore struct {
	entries *gocache.Cache
}

// NewMemoryStore constructs an in-process revocation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

// Revoke blacklists the token for ttl.
func (store *MemoryStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := validateRevoke(token, ttl); err != nil {
		return fmt.Errorf("revocation.revoke.memory: %w", err)
	}
	store.entries.Set(tokenKey(token), revokedMarker, ttl)
	return nil
}

// IsRevoked reports whether the token is blacklisted. Entries past their TTL read as absent.
func (store *MemoryStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	_, found := store.entries.Get(tokenKey(token))
	return found, nil
}
