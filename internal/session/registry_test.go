package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore holds the first Clear until release is closed.
type gatedStore struct {
	*flagstore.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Clear(ctx context.Context, session string, flags ...flagstore.Flag) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.Clear(ctx, session, flags...)
}

type brokenStore struct {
	*flagstore.MemoryStore
}

func (brokenStore) Clear(context.Context, string, ...flagstore.Flag) error {
	return errors.New("connection refused")
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestRegistry_Guard(t *testing.T) {
	c := &clock{now: time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)}
	store := flagstore.NewMemoryStore()
	ctx := context.Background()

	// leftovers from a previous page load
	require.NoError(t, store.Set(ctx, "s1", flagstore.LastAuthRedirect, "old"))
	require.NoError(t, store.Set(ctx, "s1", flagstore.AuthLoopDetected, "true"))

	r := NewRegistry(guard.DefaultConfig(), store, WithClock(c.Now))

	g := r.Guard(ctx, "s1")
	require.NotNil(t, g)
	assert.Same(t, g, r.Guard(ctx, "s1"))
	assert.NotSame(t, g, r.Guard(ctx, "s2"))
	assert.Equal(t, 2, r.Len())

	flags, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, flags, "first sight clears persisted flags")

	found, ok := r.Lookup("s1")
	assert.True(t, ok)
	assert.Same(t, g, found)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
	_, ok = r.Recovery("nope")
	assert.False(t, ok)
}

func TestRegistry_LoopPersistsFlag(t *testing.T) {
	c := &clock{now: time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)}
	store := flagstore.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r := NewRegistry(guard.DefaultConfig(), store, WithClock(c.Now), WithMetrics(m))
	g := r.Guard(ctx, "s1")
	for i := 0; i < 11; i++ {
		g.RecordRequest()
	}
	require.True(t, g.ShouldPreventRequest())

	flags, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "true", flags[flagstore.AuthLoopDetected])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoopsDetected))

	routine, ok := r.Recovery("s1")
	require.True(t, ok)
	assert.True(t, routine.ResetAllAuthState(ctx))
	assert.False(t, g.IsLoopDetected())

	flags, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestRegistry_EvictIdle(t *testing.T) {
	c := &clock{now: time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(guard.DefaultConfig(), nil, WithClock(c.Now), WithMetrics(m))
	ctx := context.Background()

	r.Guard(ctx, "old")
	c.now = c.now.Add(10 * time.Minute)
	r.Guard(ctx, "fresh")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	evicted := r.EvictIdle(c.now.Add(-5 * time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	_, ok := r.Lookup("old")
	assert.False(t, ok)

	// touching a session keeps it alive
	c.now = c.now.Add(10 * time.Minute)
	r.Guard(ctx, "fresh")
	assert.Equal(t, 0, r.EvictIdle(c.now.Add(-5*time.Minute)))
}

func TestRegistry_ConcurrentFirstSight(t *testing.T) {
	store := &gatedStore{
		MemoryStore: flagstore.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := NewRegistry(guard.Config{Window: time.Minute, Limit: 2}, store)
	ctx := context.Background()

	first := make(chan *guard.Guard, 1)
	go func() { first <- r.Guard(ctx, "s1") }()
	<-store.entered

	second := make(chan *guard.Guard, 1)
	go func() { second <- r.Guard(ctx, "s1") }()

	select {
	case <-second:
		t.Fatal("guard handed out before page-load recovery finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	g := <-first
	require.Same(t, g, <-second)

	for i := 0; i < 3; i++ {
		g.RecordRequest()
	}
	require.True(t, g.ShouldPreventRequest())

	flags, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "true", flags[flagstore.AuthLoopDetected])
	assert.Equal(t, 3, g.Snapshot().RequestCount)
}

func TestRegistry_PageLoadResetMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r := NewRegistry(guard.DefaultConfig(), brokenStore{flagstore.NewMemoryStore()}, WithMetrics(m))
	r.Guard(ctx, "s1")
	r.Guard(ctx, "s1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resets.WithLabelValues("error")))

	r = NewRegistry(guard.DefaultConfig(), flagstore.NewMemoryStore(), WithMetrics(m))
	r.Guard(ctx, "s1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resets.WithLabelValues("success")))
}
