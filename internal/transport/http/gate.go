package httptransport

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/log"
	"github.com/lowc1012/authguard/internal/metrics"
	"go.uber.org/zap"
)

const (
	headerState    = "X-Authguard-State"
	headerRequests = "X-Authguard-Requests"
	headerLimit    = "X-Authguard-Limit"
	headerRetry    = "Retry-After"

	stateAllow = "Allow"
	stateDeny  = "Deny"
)

// Guards hands out the guard of a session.
type Guards interface {
	Guard(ctx context.Context, sessionID string) *guard.Guard
}

type sessionKey struct{}

// SessionFromContext returns the session key stored by the gate or the
// session middleware.
func SessionFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}

func withSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// RequireSession rejects requests without a session key and stores the key
// on the request context.
func RequireSession(extractor Extractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := extractor.Extract(r)
			if err != nil {
				writeText(w, http.StatusBadRequest, "failed to collect session key from request: %v", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), key)))
		})
	}
}

type gate struct {
	handler http.Handler
	guards  Guards
	metrics *metrics.Metrics
	timeNow func() time.Time
}

// NewGate wraps an auth check handler with the session's loop guard. Denied
// requests get a 429 and never reach the wrapped handler; allowed requests
// are recorded on the guard right before being forwarded. It expects
// RequireSession to have run.
func NewGate(next http.Handler, guards Guards, m *metrics.Metrics) http.Handler {
	return &gate{
		handler: next,
		guards:  guards,
		metrics: m,
		timeNow: time.Now,
	}
}

// ServeHTTP sets the guard headers on both outcomes so clients can tell how
// close they are to tripping it.
func (h *gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == "" {
		writeText(w, http.StatusBadRequest, "failed to collect session key from request")
		return
	}

	g := h.guards.Guard(r.Context(), session)
	prevent := g.ShouldPreventRequest()
	h.metrics.ObserveCheck(!prevent)

	st := g.Status()
	w.Header().Set(headerRequests, strconv.Itoa(st.RequestCount))
	w.Header().Set(headerLimit, strconv.Itoa(st.Limit))

	if prevent {
		retry := st.WindowEndsAt.Sub(h.timeNow())
		w.Header().Set(headerState, stateDeny)
		w.Header().Set(headerRetry, strconv.Itoa(retryAfterSeconds(retry)))
		log.Logger().Info("Auth check prevented",
			zap.String("session", session),
			zap.Int("requestCount", st.RequestCount),
			zap.String("requestID", RequestIDFromContext(r.Context())))
		writeText(w, http.StatusTooManyRequests, "too many authentication checks from this session, retry after the window resets")
		return
	}

	g.RecordRequest()
	w.Header().Set(headerState, stateAllow)
	h.handler.ServeHTTP(w, r)
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func writeText(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		log.Logger().Warn("failed to write body to HTTP response", zap.Error(err))
	}
}
