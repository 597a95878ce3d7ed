package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

var (
	// ErrStateNotFound indicates the supplied state was not issued or already consumed.
	ErrStateNotFound = errors.New("oauth_state.not_found")
	// ErrStateExpired indicates the state expired before the provider redirected back.
	ErrStateExpired = errors.New("oauth_state.expired")
	// ErrStateProviderMismatch indicates the state was issued for a different provider.
	ErrStateProviderMismatch = errors.New("oauth_state.provider_mismatch")
)

// StateStore issues one-time OAuth2 state values that bind a callback to its authorization request.
type StateStore interface {
	// Issue creates a new state value for the provider.
	Issue(ctx context.Context, provider Provider) (string, error)
	// Consume validates and invalidates a state value.
	Consume(ctx context.Context, state string, provider Provider) error
}

type stateEntry struct {
	provider  Provider
	expiresAt time.Time
}

type memoryStateStore struct {
	mutex     sync.Mutex
	entries   map[string]stateEntry
	ttl       time.Duration
	now       func() time.Time
	tokenSize int
}

// NewMemoryStateStore constructs an in-memory StateStore with the provided TTL.
func NewMemoryStateStore(ttl time.Duration) StateStore {
	return &memoryStateStore{
		entries:   make(map[string]stateEntry),
		ttl:       ttl,
		now:       time.Now,
		tokenSize: 32,
	}
}

func (store *memoryStateStore) Issue(ctx context.Context, provider Provider) (string, error) {
	state, err := store.randomState()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[state] = stateEntry{provider: provider, expiresAt: store.now().Add(store.ttl)}
	return state, nil
}

func (store *memoryStateStore) Consume(ctx context.Context, state string, provider Provider) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()
	entry, ok := store.entries[state]
	if !ok {
		return ErrStateNotFound
	}
	delete(store.entries, state)
	if store.now().After(entry.expiresAt) {
		return ErrStateExpired
	}
	if entry.provider != provider {
		return ErrStateProviderMismatch
	}
	return nil
}

func (store *memoryStateStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for state, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, state)
		}
	}
}

func (store *memoryStateStore) randomState() (string, error) {
	buffer := make([]byte, store.tokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
