package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "revoked:"

// RedisStore shares revocations between service instances through Redis key expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix selects "revoked:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Connect dials Redis and verifies connectivity with a bounded ping.
func Connect(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("revocation.redis.empty_addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation.redis.ping: %w", err)
	}
	return client, nil
}

func (store *RedisStore) key(token string) string {
	return store.prefix + tokenKey(token)
}

// Revoke blacklists the token for ttl.
func (store *RedisStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := validateRevoke(token, ttl); err != nil {
		return fmt.Errorf("revocation.revoke.redis: %w", err)
	}
	if err := store.client.Set(ctx, store.key(token), revokedMarker, ttl).Err(); err != nil {
		return fmt.Errorf("revocation.revoke.redis: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token is blacklisted.
func (store *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	count, err := store.client.Exists(ctx, store.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation.is_revoked.redis: %w", err)
	}
	return count > 0, nil
}
