package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/guard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutine_ResetAllAuthState(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := flagstore.NewRedisStore(client, time.Hour, "")
	ctx := context.Background()

	now := time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)
	g := guard.New(guard.DefaultConfig(), guard.WithClock(func() time.Time { return now }))
	for i := 0; i < 11; i++ {
		g.RecordRequest()
	}
	require.True(t, g.ShouldPreventRequest())

	for _, f := range flagstore.All {
		require.NoError(t, store.Set(ctx, "s1", f, "1"))
	}
	require.NoError(t, store.Set(ctx, "s2", flagstore.LastAuthRedirect, "1"))

	r := New("s1", g, store)
	assert.True(t, r.ResetAllAuthState(ctx))

	assert.False(t, g.IsLoopDetected())
	assert.Equal(t, 0, g.Snapshot().RequestCount)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRoutine_StorageUnavailable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	g := guard.New(guard.DefaultConfig())
	for i := 0; i < 11; i++ {
		g.RecordRequest()
	}
	require.True(t, g.ShouldPreventRequest())

	r := New("s1", g, flagstore.NewRedisStore(client, time.Hour, ""))
	assert.False(t, r.ResetAllAuthState(context.Background()))

	// the in-memory guard is reset even though storage failed
	assert.False(t, g.IsLoopDetected())
}

func TestRoutine_NoStore(t *testing.T) {
	g := guard.New(guard.DefaultConfig())
	g.RecordRequest()

	assert.True(t, New("s1", g, nil).ResetAllAuthState(context.Background()))
	assert.Equal(t, 0, g.Snapshot().RequestCount)
}
