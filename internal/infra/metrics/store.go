package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(statusStoreFailuresTotal) }

var statusStoreFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "status_store_failures_total",
		Help: "Status document loads and saves that failed, by operation.",
	},
	[]string{"op"}, // load | save
)

func IncStatusStoreFailure(op string) {
	statusStoreFailuresTotal.WithLabelValues(norm(op)).Inc()
}
