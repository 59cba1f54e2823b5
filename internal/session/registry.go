// Package session owns one loop guard per browser session. A session seen
// for the first time is treated as a page load: its guard starts fresh and
// its persisted flags are cleared.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/log"
	"github.com/lowc1012/authguard/internal/metrics"
	"github.com/lowc1012/authguard/internal/recovery"
	"go.uber.org/zap"
)

type entry struct {
	guard    *guard.Guard
	recovery *recovery.Routine
	lastSeen time.Time
	// ready is closed once the page-load recovery has finished
	ready chan struct{}
}

// Registry maps session IDs to their guards.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	cfg         guard.Config
	store       flagstore.Store
	metrics     *metrics.Metrics
	sinkTimeout time.Duration
	timeNow     func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.timeNow = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSinkTimeout bounds the flag write made when a guard trips.
func WithSinkTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sinkTimeout = d
		}
	}
}

// NewRegistry creates an empty registry. store may be nil, in which case
// nothing is persisted.
func NewRegistry(cfg guard.Config, store flagstore.Store, opts ...Option) *Registry {
	r := &Registry{
		sessions:    make(map[string]*entry),
		cfg:         cfg,
		store:       store,
		sinkTimeout: time.Second,
		timeNow:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Guard returns the session's guard, creating it on first use. Callers that
// race a session's first request wait until its page-load recovery is done,
// so no request is counted against a guard that is about to be reset.
func (r *Registry) Guard(ctx context.Context, sessionID string) *guard.Guard {
	r.mu.Lock()
	now := r.timeNow()
	if e, ok := r.sessions[sessionID]; ok {
		e.lastSeen = now
		r.mu.Unlock()
		<-e.ready
		return e.guard
	}

	e := r.newEntry(sessionID, now)
	r.sessions[sessionID] = e
	n := len(r.sessions)
	r.mu.Unlock()
	defer close(e.ready)

	r.metrics.SetActiveSessions(n)
	log.Logger().Debug("New session guard", zap.String("session", sessionID))

	// page load: start from a clean slate
	r.metrics.ObserveReset(e.recovery.ResetAllAuthState(ctx))
	return e.guard
}

// Lookup returns the guard of a known session without creating one.
func (r *Registry) Lookup(sessionID string) (*guard.Guard, bool) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return nil, false
	}
	return e.guard, true
}

// Recovery returns the recovery routine of a known session.
func (r *Registry) Recovery(sessionID string) (*recovery.Routine, bool) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return nil, false
	}
	return e.recovery, true
}

func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	return e, true
}

// EvictIdle drops sessions not seen since cutoff and returns how many were
// dropped. Their persisted flags are left to expire on their own.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	var evicted int
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	return evicted
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) newEntry(sessionID string, now time.Time) *entry {
	sinks := guard.MultiSink{
		guard.SinkFunc(func(guard.State) { r.metrics.IncrementLoopsDetected() }),
	}
	if r.store != nil {
		sinks = append(sinks, flagstore.NewLoopSink(r.store, sessionID, r.sinkTimeout))
	}

	g := guard.New(r.cfg, guard.WithClock(r.timeNow), guard.WithSink(sinks))
	return &entry{
		guard:    g,
		recovery: recovery.New(sessionID, g, r.store),
		lastSeen: now,
		ready:    make(chan struct{}),
	}
}
