package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ThrottleSignal("GET /users", 2*time.Second)
	rec.ThrottleSignal("GET /users", time.Second)
	rec.RetryAttempt("GET /users")
	rec.RetryOutcome("GET /users", "recovered")
	rec.WaitObserved("GET /users", 2*time.Second)

	require.Equal(t, float64(2), testutil.ToFloat64(rec.throttleSignals.WithLabelValues("GET /users")))
	require.Equal(t, float64(1), testutil.ToFloat64(rec.retryAttempts.WithLabelValues("GET /users")))
	require.Equal(t, float64(1), testutil.ToFloat64(rec.retryOutcomes.WithLabelValues("GET /users", "recovered")))
}

func TestRecorderNilSafe(t *testing.T) {
	var rec *Recorder
	require.NotPanics(t, func() {
		rec.ThrottleSignal("GET /users", time.Second)
		rec.RetryAttempt("GET /users")
		rec.RetryOutcome("GET /users", "exhausted")
		rec.WaitObserved("GET /users", time.Second)
	})
}
