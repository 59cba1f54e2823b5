// Package metrics defines the Prometheus collectors of the auth guard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the guard service.
type Metrics struct {
	Checks          *prometheus.CounterVec
	LoopsDetected   prometheus.Counter
	Resets          *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	CleanupRuns     *prometheus.CounterVec
	CleanupEvicted  prometheus.Counter
	CleanupDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_checks_total",
			Help: "Auth check requests evaluated by the loop guard",
		}, []string{"decision"}),
		LoopsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_loops_detected_total",
			Help: "Times a session guard tripped",
		}),
		Resets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_resets_total",
			Help: "Auth state resets by outcome",
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "authguard_active_sessions",
			Help: "Sessions with a live guard",
		}),
		CleanupRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_cleanup_runs_total",
			Help: "Idle session cleanup runs",
		}, []string{"status"}),
		CleanupEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_cleanup_evicted_total",
			Help: "Idle sessions evicted by the cleanup worker",
		}),
		CleanupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "authguard_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}

// ObserveCheck counts one gate decision.
func (m *Metrics) ObserveCheck(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.Checks.WithLabelValues("allow").Inc()
		return
	}
	m.Checks.WithLabelValues("deny").Inc()
}

// IncrementLoopsDetected counts a guard trip.
func (m *Metrics) IncrementLoopsDetected() {
	if m == nil {
		return
	}
	m.LoopsDetected.Inc()
}

// ObserveReset counts a recovery run by outcome.
func (m *Metrics) ObserveReset(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Resets.WithLabelValues("success").Inc()
		return
	}
	m.Resets.WithLabelValues("error").Inc()
}

// SetActiveSessions records the registry size.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
