package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		hunterRunning,
		hunterPassesTotal,
		hunterPassErrorsTotal,
		hunterNumbersReservedTotal,
		hunterReserveFailuresTotal,
	)
}

var (
	hunterRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hunter_running",
			Help: "1 while the purchase loop is alive.",
		},
	)

	hunterPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_passes_total",
			Help: "Completed passes over the configured countries.",
		},
	)

	hunterPassErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_pass_errors_total",
			Help: "Passes aborted by an unexpected error or panic.",
		},
	)

	hunterNumbersReservedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_numbers_reserved_total",
			Help: "Numbers reserved by the loop, labeled by provider country id.",
		},
		[]string{"country"},
	)

	hunterReserveFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_reserve_failures_total",
			Help: "Failed reservations by reason (provider token, transport, parse).",
		},
		[]string{"reason"},
	)
)

func SetHunterRunning(running bool) {
	if running {
		hunterRunning.Set(1)
		return
	}
	hunterRunning.Set(0)
}

func IncHunterPass()      { hunterPassesTotal.Inc() }
func IncHunterPassError() { hunterPassErrorsTotal.Inc() }

func IncNumberReserved(country string) {
	hunterNumbersReservedTotal.WithLabelValues(norm(country)).Inc()
}

func IncReserveFailure(reason string) {
	hunterReserveFailuresTotal.WithLabelValues(norm(reason)).Inc()
}
