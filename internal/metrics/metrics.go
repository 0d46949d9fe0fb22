// Package metrics exposes Prometheus instrumentation for the detection
// pipeline. Label cardinality is bounded: the only label is the probe
// outcome, which has four fixed values.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe outcome label values.
const (
	// OutcomeFollowBack marks a probe that detected a mutual follow.
	OutcomeFollowBack = "follow_back"

	// OutcomeNoFollowBack marks a successful probe without a follow
	// back.
	OutcomeNoFollowBack = "no_follow_back"

	// OutcomeFollowFailed marks a probe whose follow never succeeded.
	OutcomeFollowFailed = "follow_failed"

	// OutcomeSkipped marks a user skipped by the idempotency guards.
	OutcomeSkipped = "skipped"
)

var (
	// probesTotal counts finished probes by outcome.
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdetect",
			Name:      "probes_total",
			Help:      "Total number of finished probes by outcome.",
		},
		[]string{"outcome"},
	)

	// failedUnfollowsTotal counts escalated unfollow failures, which
	// require manual remediation.
	failedUnfollowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fdetect",
			Name:      "failed_unfollows_total",
			Help:      "Total number of escalated unfollow failures.",
		},
	)

	// probeInflight is 1 while a probe is running. The pipeline is
	// strictly sequential, so this never exceeds 1.
	probeInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fdetect",
			Name:      "probe_inflight",
			Help:      "Whether a probe is currently in flight.",
		},
	)

	// probeDuration records per-probe wall time. Buckets cover the
	// span between an instant skip and a double timeout.
	probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fdetect",
			Name:      "probe_duration_seconds",
			Help:      "Duration of individual probes in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(
		probesTotal, failedUnfollowsTotal, probeInflight, probeDuration,
	)
}

// ProbeStarted marks a probe as in flight and returns a done function that
// records its outcome and duration.
func ProbeStarted() func(outcome string) {
	probeInflight.Set(1)
	start := time.Now()

	return func(outcome string) {
		probeInflight.Set(0)
		probeDuration.Observe(time.Since(start).Seconds())
		probesTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordSkip counts an idempotent skip without marking the probe in flight.
func RecordSkip() {
	probesTotal.WithLabelValues(OutcomeSkipped).Inc()
}

// RecordFailedUnfollow counts an escalated unfollow failure.
func RecordFailedUnfollow() {
	failedUnfollowsTotal.Inc()
}

// Serve exposes /metrics on the given address. It blocks until the listener
// fails; callers run it on its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return http.ListenAndServe(addr, mux)
}
