package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "accessgraph",
		Subsystem: "dispatch",
		Name:      "query_latency_seconds",
		Help:      "Per-operation dispatcher latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accessgraph",
		Subsystem: "dispatch",
		Name:      "queries_total",
		Help:      "Total dispatcher-routed queries by operation and outcome.",
	}, []string{"op", "outcome"})

	inFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "accessgraph",
		Subsystem: "dispatch",
		Name:      "in_flight_sources",
		Help:      "Sources currently being processed by GuidedFor, by operation.",
	}, []string{"op"})
)

// Observe records one op invocation's outcome and latency. Callers wrap a
// single GuidedFor call (not each per-source fn call) to avoid a metrics
// write on every hot-loop iteration.
func Observe(op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	queryTotal.WithLabelValues(op, outcome).Inc()
	queryLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// TrackInFlight increments the in-flight gauge for op and returns a func
// that decrements it; callers defer the returned func.
func TrackInFlight(op string, n int) func() {
	g := inFlight.WithLabelValues(op)
	g.Add(float64(n))
	return func() { g.Sub(float64(n)) }
}
