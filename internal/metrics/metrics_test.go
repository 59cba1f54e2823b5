package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCheck(true)
	m.ObserveCheck(true)
	m.ObserveCheck(false)
	m.IncrementLoopsDetected()
	m.ObserveReset(true)
	m.ObserveReset(false)
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checks.WithLabelValues("allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checks.WithLabelValues("deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoopsDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resets.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCheck(true)
		m.IncrementLoopsDetected()
		m.ObserveReset(true)
		m.SetActiveSessions(1)
	})
}
