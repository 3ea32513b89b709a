// Package metrics exposes Prometheus collectors for throttle activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the coordinator's telemetry hooks with Prometheus
// collectors, labeled by endpoint ("METHOD /path").
type Recorder struct {
	throttleSignals *prometheus.CounterVec
	retryAttempts   *prometheus.CounterVec
	retryOutcomes   *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
}

// NewRecorder registers the collectors on reg. Pass a fresh registry in tests
// to avoid duplicate-registration panics.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		throttleSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacekit_throttle_signals_total",
				Help: "Rate-limit signals observed per endpoint",
			},
			[]string{"endpoint"},
		),
		retryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacekit_retry_attempts_total",
				Help: "Automatic retries issued per endpoint",
			},
			[]string{"endpoint"},
		),
		retryOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacekit_retry_outcomes_total",
				Help: "Terminal retry-loop outcomes per endpoint",
			},
			[]string{"endpoint", "outcome"},
		),
		waitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacekit_throttle_wait_seconds",
				Help:    "Pre-send waits imposed by open throttle windows",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"endpoint"},
		),
	}
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// Default returns the process-wide recorder on the default registry.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// ThrottleSignal counts one observed rate-limit signal.
func (r *Recorder) ThrottleSignal(endpoint string, retryAfter time.Duration) {
	if r == nil {
		return
	}
	r.throttleSignals.WithLabelValues(endpoint).Inc()
}

// RetryAttempt counts one re-issued send.
func (r *Recorder) RetryAttempt(endpoint string) {
	if r == nil {
		return
	}
	r.retryAttempts.WithLabelValues(endpoint).Inc()
}

// RetryOutcome counts the terminal outcome of one retry loop.
func (r *Recorder) RetryOutcome(endpoint, outcome string) {
	if r == nil {
		return
	}
	r.retryOutcomes.WithLabelValues(endpoint, outcome).Inc()
}

// WaitObserved records a pre-send wait.
func (r *Recorder) WaitObserved(endpoint string, wait time.Duration) {
	if r == nil {
		return
	}
	r.waitDuration.WithLabelValues(endpoint).Observe(wait.Seconds())
}
