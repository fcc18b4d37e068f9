package sso

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStateTest(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisStateStore(client), mr
}

func testStateStore(t *testing.T, store StateStore) {
	ctx := context.Background()

	st, err := NewDelegationState("/admin/")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Consume(ctx, st.State)
	require.NoError(t, err)
	assert.Equal(t, st.Nonce, got.Nonce)
	assert.Equal(t, st.CodeVerifier, got.CodeVerifier)
	assert.Equal(t, "/admin/", got.ReturnPath)

	_, err = store.Consume(ctx, st.State)
	assert.ErrorIs(t, err, ErrStateNotFound, "state must be single use")

	_, err = store.Consume(ctx, "unknown")
	assert.ErrorIs(t, err, ErrStateNotFound)

	_, err = store.Consume(ctx, "")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestMemoryStateStore(t *testing.T) {
	testStateStore(t, NewMemoryStateStore(16))
}

func TestMemoryStateStore_Stale(t *testing.T) {
	store := NewMemoryStateStore(16)
	st, err := NewDelegationState("/")
	require.NoError(t, err)
	st.CreatedAt = time.Now().Add(-StateTTL - time.Second)
	require.NoError(t, store.Save(context.Background(), st))

	_, err = store.Consume(context.Background(), st.State)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRedisStateStore(t *testing.T) {
	store, _ := setupRedisStateTest(t)
	testStateStore(t, store)
}

func TestRedisStateStore_TTL(t *testing.T) {
	store, mr := setupRedisStateTest(t)
	st, err := NewDelegationState("/")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), st))

	assert.Equal(t, StateTTL, mr.TTL("keyhole:oidc:state:"+st.State))

	mr.FastForward(StateTTL + time.Second)
	_, err = store.Consume(context.Background(), st.State)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRedisStateStore_Unavailable(t *testing.T) {
	store, mr := setupRedisStateTest(t)
	mr.Close()

	_, err := store.Consume(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
}
