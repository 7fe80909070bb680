package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(upstreamRequestsTotal, upstreamLatencyMs) }

var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_upstream_requests_total",
			Help: "Calls to the number provider by action and outcome.",
		},
		[]string{"action", "outcome"}, // ok | rejected | transport | parse
	)

	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sms_upstream_latency_ms",
			Help:    "Number provider call latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
		},
		[]string{"action"},
	)
)

func ObserveUpstream(action, outcome string, latencyMs int64) {
	upstreamRequestsTotal.WithLabelValues(norm(action), norm(outcome)).Inc()
	upstreamLatencyMs.WithLabelValues(norm(action)).Observe(float64(latencyMs))
}
