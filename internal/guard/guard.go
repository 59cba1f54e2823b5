// Package guard implements the authentication request loop guard: a fixed
// window counter that trips when a client issues auth checks faster than a
// redirect-free flow ever would, and stays tripped until the window rolls
// over or the guard is reset.
package guard

import (
	"sync"
	"time"
)

// Config holds the guard thresholds.
type Config struct {
	// Window is the length of a counting window.
	Window time.Duration
	// GracePeriod is measured from the guard's process start. While inside
	// it StartupLimit applies instead of Limit. Zero disables the grace
	// period.
	GracePeriod time.Duration
	// StartupLimit is the per-window threshold during the grace period.
	StartupLimit int
	// Limit is the per-window threshold after the grace period.
	Limit int
}

// DefaultConfig returns the thresholds observed in browsers: 5 second
// windows, 10 checks per window during the first 10 seconds, 5 afterwards.
func DefaultConfig() Config {
	return Config{
		Window:       5 * time.Second,
		GracePeriod:  10 * time.Second,
		StartupLimit: 10,
		Limit:        5,
	}
}

// State is a point-in-time copy of the guard's counters.
type State struct {
	RequestCount int
	WindowStart  time.Time
	Blocked      bool
	ProcessStart time.Time
}

// Guard is the loop guard facade. The zero value is not usable; build one
// with New.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	sink    DiagnosticsSink
	timeNow func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.timeNow = now
		}
	}
}

// WithSink installs a diagnostics sink notified when a loop is detected.
func WithSink(sink DiagnosticsSink) Option {
	return func(g *Guard) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// New returns a guard whose window and process start are now.
func New(cfg Config, opts ...Option) *Guard {
	g := &Guard{
		cfg:     cfg,
		sink:    NopSink{},
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.timeNow()
	g.state = State{WindowStart: now, ProcessStart: now}
	return g
}

// ShouldPreventRequest reports whether the caller must not issue an auth
// request now. It rolls the window when it has expired and latches the
// blocked state once the effective threshold is exceeded.
func (g *Guard) ShouldPreventRequest() bool {
	g.mu.Lock()

	now := g.timeNow()
	g.roll(now)

	if g.state.Blocked {
		g.mu.Unlock()
		return true
	}

	if g.state.RequestCount <= g.limit(now) {
		g.mu.Unlock()
		return false
	}

	g.state.Blocked = true
	snapshot := g.state
	g.mu.Unlock()

	// sink runs without the lock held
	g.sink.LoopDetected(snapshot)
	return true
}

// RecordRequest counts one issued auth request. The guard never issues
// requests itself.
func (g *Guard) RecordRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.RequestCount++
}

// Reset clears the counters and restarts both the window and the grace
// period.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	g.state = State{WindowStart: now, ProcessStart: now}
}

// IsLoopDetected returns the blocked state without touching the window.
func (g *Guard) IsLoopDetected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Blocked
}

// Snapshot returns a copy of the current state.
func (g *Guard) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Status is a consistent view of the guard for reporting.
type Status struct {
	State
	Limit        int
	WindowEndsAt time.Time
}

// Status returns the state, the effective threshold and the window end
// read under a single lock.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:        g.state,
		Limit:        g.limit(g.timeNow()),
		WindowEndsAt: g.state.WindowStart.Add(g.cfg.Window),
	}
}

// Limit returns the threshold in effect right now.
func (g *Guard) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit(g.timeNow())
}

// WindowEndsAt returns when the current window rolls over.
func (g *Guard) WindowEndsAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.WindowStart.Add(g.cfg.Window)
}

func (g *Guard) roll(now time.Time) {
	if now.Sub(g.state.WindowStart) < g.cfg.Window {
		return
	}
	g.state.RequestCount = 0
	g.state.WindowStart = now
	g.state.Blocked = false
}

func (g *Guard) limit(now time.Time) int {
	if g.cfg.GracePeriod > 0 && now.Sub(g.state.ProcessStart) < g.cfg.GracePeriod {
		return g.cfg.StartupLimit
	}
	return g.cfg.Limit
}
