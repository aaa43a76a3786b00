package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmesh/shopmesh/internal/auth/domain"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, time.Hour), mr
}

func TestSetAndGet(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	sess := &domain.Session{
		UserID: "uid-1",
		Email:  "jane@example.com",
		Roles:  []string{"Customer"},
	}
	require.NoError(t, store.Set(ctx, "tok-abc", sess))

	got, err := store.Get(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestGet_Missing(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSet_StoresJSONWithTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	sess := &domain.Session{UserID: "uid-1", Email: "jane@example.com"}
	require.NoError(t, store.Set(ctx, "tok-abc", sess))

	raw, err := mr.Get("session:tok-abc")
	require.NoError(t, err)

	var stored domain.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "uid-1", stored.UserID)

	assert.Equal(t, time.Hour, mr.TTL("session:tok-abc"))
}

func TestGet_AfterExpiry(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tok-abc", &domain.Session{UserID: "uid-1"}))

	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, "tok-abc")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tok-abc", &domain.Session{UserID: "uid-1"}))
	require.NoError(t, store.Delete(ctx, "tok-abc"))

	_, err := store.Get(ctx, "tok-abc")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}
