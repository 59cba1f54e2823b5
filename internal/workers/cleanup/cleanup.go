package cleanup

import (
	"context"
	"time"

	"github.com/lowc1012/authguard/internal/log"
	"github.com/lowc1012/authguard/internal/metrics"
	"go.uber.org/zap"
)

// Result contains the results of a cleanup run.
type Result struct {
	Evicted  int
	Duration time.Duration
}

// SessionStore is the part of the session registry the worker needs.
type SessionStore interface {
	EvictIdle(cutoff time.Time) int
}

type Option func(*Worker)

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithIdleTTL(ttl time.Duration) Option {
	return func(w *Worker) {
		if ttl > 0 {
			w.idleTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.timeNow = now
		}
	}
}

// Worker evicts sessions whose guard has not been consulted for idleTTL.
type Worker struct {
	sessions SessionStore
	interval time.Duration
	idleTTL  time.Duration
	metrics  *metrics.Metrics
	timeNow  func() time.Time
}

func New(sessions SessionStore, opts ...Option) *Worker {
	w := &Worker{
		sessions: sessions,
		interval: time.Minute,
		idleTTL:  30 * time.Minute,
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs cleanup every interval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := w.RunOnce(ctx)
			if err != nil {
				log.Logger().Error("Session cleanup failed", zap.Error(err))
				if w.metrics != nil {
					w.metrics.CleanupRuns.WithLabelValues("error").Inc()
				}
				continue
			}

			log.Logger().Debug("Session cleanup completed",
				zap.Int("evicted", res.Evicted),
				zap.Int64("durationMs", res.Duration.Milliseconds()))

			if w.metrics != nil {
				w.metrics.CleanupRuns.WithLabelValues("success").Inc()
				w.metrics.CleanupEvicted.Add(float64(res.Evicted))
				w.metrics.CleanupDuration.Observe(res.Duration.Seconds())
			}

		case <-ctx.Done():
			log.Logger().Info("Session cleanup worker stopping", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run.
func (w *Worker) RunOnce(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := w.timeNow()
	evicted := w.sessions.EvictIdle(start.Add(-w.idleTTL))
	return &Result{
		Evicted:  evicted,
		Duration: w.timeNow().Sub(start),
	}, nil
}
