package flagstore

import (
	"context"
	"time"

	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/log"
	"go.uber.org/zap"
)

var _ guard.DiagnosticsSink = &LoopSink{}

// LoopSink records authLoopDetected for one session when its guard trips.
// Write failures are logged and dropped.
type LoopSink struct {
	store   Store
	session string
	timeout time.Duration
}

func NewLoopSink(store Store, session string, timeout time.Duration) *LoopSink {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &LoopSink{store: store, session: session, timeout: timeout}
}

func (s *LoopSink) LoopDetected(state guard.State) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.Set(ctx, s.session, AuthLoopDetected, "true"); err != nil {
		log.Logger().Warn("Failed to persist loop detection flag",
			zap.String("session", s.session),
			zap.Int("requestCount", state.RequestCount),
			zap.Error(err))
		return
	}
	log.Logger().Warn("Auth request loop detected",
		zap.String("session", s.session),
		zap.Int("requestCount", state.RequestCount),
		zap.Time("windowStart", state.WindowStart))
}
