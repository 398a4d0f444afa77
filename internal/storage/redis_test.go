package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/session"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreWithClient(client, "authfront:sess:"), mr
}

func TestRedisStoreGetPut(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess := newTestSession("s1", time.Now().Add(time.Hour))
	sess.Grant = &session.Grant{
		State:        session.StateTokenAcquired,
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenExpiry:  time.Now().Add(10 * time.Minute).UTC(),
	}
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	require.NotNil(t, got.Grant)
	assert.Equal(t, session.StateTokenAcquired, got.Grant.State)
	assert.Equal(t, "at", got.Grant.AccessToken)
	assert.Equal(t, "rt", got.Grant.RefreshToken)
}

func TestRedisStorePutSetsTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestSession("s1", time.Now().Add(time.Minute))))

	ttl := mr.TTL("authfront:sess:s1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// Sessions expire natively once the TTL elapses
	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorePutExpiredDeletes(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestSession("s1", time.Now().Add(time.Hour))))

	// Writing back a session whose expiry already passed removes it
	require.NoError(t, store.Put(ctx, newTestSession("s1", time.Now().Add(-time.Second))))
	assert.False(t, mr.Exists("authfront:sess:s1"))
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestSession("s1", time.Now().Add(time.Hour))))
	require.NoError(t, store.Delete(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestRedisStoreList(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestSession("s1", time.Now().Add(time.Hour))))
	require.NoError(t, store.Put(ctx, newTestSession("s2", time.Now().Add(time.Hour))))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID] = true
	}
	assert.True(t, ids["s1"])
	assert.True(t, ids["s2"])
}

func TestRedisStoreKeyPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storeA := NewRedisStoreWithClient(client, "a:")
	storeB := NewRedisStoreWithClient(client, "b:")
	ctx := context.Background()

	require.NoError(t, storeA.Put(ctx, newTestSession("s1", time.Now().Add(time.Hour))))

	_, err := storeB.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sessions, err := storeB.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
