// Package recovery clears a session's loop guard together with the
// persisted flags that the redirect-loop heuristics consult.
package recovery

import (
	"context"

	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/log"
	"go.uber.org/zap"
)

// Resetter is the part of the guard the routine needs.
type Resetter interface {
	Reset()
}

// Routine resets one session's auth state.
type Routine struct {
	session string
	guard   Resetter
	store   flagstore.Store
}

var _ Resetter = (*guard.Guard)(nil)

// New returns the routine for session. g and store may be nil.
func New(session string, g Resetter, store flagstore.Store) *Routine {
	return &Routine{session: session, guard: g, store: store}
}

// ResetAllAuthState resets the guard and clears every persisted flag of the
// session. It returns false only when the flag store could not be cleared;
// the guard itself is reset either way.
func (r *Routine) ResetAllAuthState(ctx context.Context) bool {
	if r.guard != nil {
		r.guard.Reset()
	}
	if r.store == nil {
		return true
	}

	if err := r.store.Clear(ctx, r.session, flagstore.All...); err != nil {
		log.Logger().Error("Failed to clear persisted auth flags",
			zap.String("session", r.session), zap.Error(err))
		return false
	}
	log.Logger().Debug("Auth state reset", zap.String("session", r.session))
	return true
}
