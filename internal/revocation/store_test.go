package revocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestStoresRejectInvalidInput(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, ""),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, store.Revoke(context.Background(), " ", time.Minute), ErrEmptyToken)
			require.ErrorIs(t, store.Revoke(context.Background(), "token", 0), ErrInvalidTTL)

			revoked, err := store.IsRevoked(context.Background(), "")
			require.NoError(t, err)
			require.False(t, revoked)
		})
	}
}

func TestMemoryStoreRevocationWindow(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "header.payload.signature")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "header.payload.signature", 80*time.Millisecond))

	revoked, err = store.IsRevoked(ctx, "header.payload.signature")
	require.NoError(t, err)
	require.True(t, revoked, "revocation must be visible immediately")

	other, err := store.IsRevoked(ctx, "header.payload.other")
	require.NoError(t, err)
	require.False(t, other)

	require.Eventually(t, func() bool {
		stillRevoked, checkErr := store.IsRevoked(ctx, "header.payload.signature")
		return checkErr == nil && !stillRevoked
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStoreConcurrentRevocations(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	var waitGroup sync.WaitGroup
	for worker := 0; worker < 16; worker++ {
		waitGroup.Add(1)
		go func(worker int) {
			defer waitGroup.Done()
			token := "token-" + string(rune('a'+worker))
			if err := store.Revoke(ctx, token, time.Minute); err != nil {
				t.Errorf("revoke %s: %v", token, err)
				return
			}
			if revoked, _ := store.IsRevoked(ctx, token); !revoked {
				t.Errorf("expected %s to be revoked after its own write", token)
			}
		}(worker)
	}
	waitGroup.Wait()
}

func TestRedisStoreRevocationWindow(t *testing.T) {
	t.Parallel()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "test:")
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "header.payload.signature", time.Hour))

	revoked, err := store.IsRevoked(ctx, "header.payload.signature")
	require.NoError(t, err)
	require.True(t, revoked)

	keys := server.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, "test:"+tokenKey("header.payload.signature"), keys[0])
	require.NotContains(t, keys[0], "payload", "raw token must not be used as key")

	server.FastForward(59 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "header.payload.signature")
	require.NoError(t, err)
	require.True(t, revoked)

	server.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "header.payload.signature")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	t.Parallel()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "")
	server.Close()

	_, err := store.IsRevoked(context.Background(), "token")
	require.Error(t, err)
	require.Error(t, store.Revoke(context.Background(), "token", time.Minute))
}

func TestConnectRequiresAddress(t *testing.T) {
	t.Parallel()
	_, err := Connect(context.Background(), "", "", 0)
	require.Error(t, err)

	server := miniredis.RunT(t)
	client, err := Connect(context.Background(), server.Addr(), "", 0)
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
