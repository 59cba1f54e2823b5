package flagstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lowc1012/authguard/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlag(t *testing.T) {
	for _, f := range All {
		got, err := ParseFlag(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := ParseFlag("authloopdetected")
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestParseMarker(t *testing.T) {
	for _, f := range RedirectMarkers {
		_, err := ParseMarker(string(f))
		assert.NoError(t, err)
	}

	_, err := ParseMarker(string(AuthLoopDetected))
	assert.ErrorIs(t, err, ErrGuardOwnedFlag)

	_, err = ParseMarker("nope")
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", LastAuthRedirect, "a"))
	require.NoError(t, store.Set(ctx, "s1", AuthLoopDetected, "true"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// returned maps are copies
	got[AuthErrorHandledAt] = "x"
	again, _ := store.Get(ctx, "s1")
	assert.Len(t, again, 2)

	require.NoError(t, store.Clear(ctx, "s1", LastAuthRedirect))
	again, _ = store.Get(ctx, "s1")
	assert.Equal(t, map[Flag]string{AuthLoopDetected: "true"}, again)

	require.NoError(t, store.Clear(ctx, "s1"))
	again, _ = store.Get(ctx, "s1")
	assert.Empty(t, again)
}

type failingStore struct {
	MemoryStore
}

func (f *failingStore) Set(context.Context, string, Flag, string) error {
	return errors.New("storage unavailable")
}

func TestLoopSink(t *testing.T) {
	store := NewMemoryStore()
	sink := NewLoopSink(store, "s1", time.Second)

	sink.LoopDetected(guard.State{Blocked: true, RequestCount: 6})

	got, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "true", got[AuthLoopDetected])
}

func TestLoopSink_SwallowsErrors(t *testing.T) {
	sink := NewLoopSink(&failingStore{}, "s1", 0)

	assert.NotPanics(t, func() {
		sink.LoopDetected(guard.State{Blocked: true})
	})
}
