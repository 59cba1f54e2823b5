package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/guard"
	"github.com/lowc1012/authguard/internal/log"
	"github.com/lowc1012/authguard/internal/metrics"
	"github.com/lowc1012/authguard/internal/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Sessions is the session registry as seen by the handlers.
type Sessions interface {
	Guards
	Recovery(sessionID string) (*recovery.Routine, bool)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the thin HTTP layer over the session registry and flag store.
type Handler struct {
	sessions Sessions
	store    flagstore.Store
	metrics  *metrics.Metrics
	timeNow  func() time.Time
}

func NewHandler(sessions Sessions, store flagstore.Store, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions: sessions,
		store:    store,
		metrics:  m,
		timeNow:  time.Now,
	}
}

// RouterConfig carries what the router needs besides the handler.
type RouterConfig struct {
	Extractor Extractor
	// Upstream serves allowed auth checks, typically a reverse proxy. When
	// nil, allowed checks get 204 and the caller talks to the auth backend
	// itself.
	Upstream http.Handler
	Gatherer prometheus.Gatherer
	Health   Pinger
}

// NewRouter wires all endpoints with middleware.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(RequireSession(cfg.Extractor))

		r.Method(http.MethodGet, "/check", NewGate(upstream, h.sessions, h.metrics))
		r.Get("/status", h.handleStatus)
		r.Post("/reset", h.handleReset)
		r.Get("/flags", h.handleFlags)
		r.Put("/flags/{flag}", h.handleSetFlag)
	})

	return r
}

type statusResponse struct {
	Session      string    `json:"session"`
	LoopDetected bool      `json:"loop_detected"`
	RequestCount int       `json:"request_count"`
	Limit        int       `json:"limit"`
	WindowStart  time.Time `json:"window_start"`
	WindowEndsAt time.Time `json:"window_ends_at"`
	ProcessStart time.Time `json:"process_start"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	g := h.sessions.Guard(r.Context(), session)
	writeJSON(w, http.StatusOK, newStatusResponse(session, g))
}

func newStatusResponse(session string, g *guard.Guard) statusResponse {
	st := g.Status()
	return statusResponse{
		Session:      session,
		LoopDetected: st.Blocked,
		RequestCount: st.RequestCount,
		Limit:        st.Limit,
		WindowStart:  st.WindowStart,
		WindowEndsAt: st.WindowEndsAt,
		ProcessStart: st.ProcessStart,
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	// creates the session on first sight
	h.sessions.Guard(r.Context(), session)
	routine, ok := h.sessions.Recovery(session)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"reset": false})
		return
	}

	success := routine.ResetAllAuthState(r.Context())
	h.metrics.ObserveReset(success)
	if !success {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"reset": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (h *Handler) handleFlags(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	flags, err := h.store.Get(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]string, len(flags))
	for f, v := range flags {
		out[string(f)] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	flag, err := flagstore.ParseMarker(chi.URLParam(r, "flag"))
	if err != nil {
		writeError(w, err)
		return
	}

	value := h.timeNow().UTC().Format(time.RFC3339Nano)
	if err := h.store.Set(r.Context(), session, flag, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{string(flag): value})
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Logger().Warn("failed to encode response", zap.Error(err))
	}
}

// writeError translates store and validation errors into HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flagstore.ErrUnknownFlag):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, flagstore.ErrGuardOwnedFlag):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		log.Logger().Error("Flag store request failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "flag store unavailable"})
	}
}
