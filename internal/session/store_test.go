package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/session"
)

type payload struct {
	CartID string `json:"cartId"`
	Step   string `json:"step"`
}

func newStore(t *testing.T) (*session.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewStore(client, time.Minute), mr
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", payload{CartID: "cart-1", Step: "review"}))

	var got payload
	require.NoError(t, store.Load(ctx, "sess-1", &got))
	require.Equal(t, payload{CartID: "cart-1", Step: "review"}, got)
}

func TestLoadMissingSession(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	var got payload
	require.ErrorIs(t, store.Load(context.Background(), "nope", &got), session.ErrNotFound)
}

func TestSessionExpires(t *testing.T) {
	t.Parallel()

	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", payload{CartID: "cart-1"}))

	mr.FastForward(2 * time.Minute)

	var got payload
	require.ErrorIs(t, store.Load(ctx, "sess-1", &got), session.ErrNotFound)
}

func TestSubmitLockIsExclusive(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()

	ok, err := store.AcquireSubmitLock(ctx, "sess-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireSubmitLock(ctx, "sess-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second submit while one is in flight must be rejected")

	require.NoError(t, store.ReleaseSubmitLock(ctx, "sess-1"))
	ok, err = store.AcquireSubmitLock(ctx, "sess-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", payload{}))
	require.NoError(t, store.Delete(ctx, "sess-1"))

	var got payload
	require.ErrorIs(t, store.Load(ctx, "sess-1", &got), session.ErrNotFound)
}
