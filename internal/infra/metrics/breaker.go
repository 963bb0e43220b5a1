package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(breakerState, breakerTransitionsTotal) }

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state per service: 0 closed, 1 half_open, 2 open.",
	},
	[]string{"service"},
)

var breakerTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions per service.",
	},
	[]string{"service", "to"},
)

func SetBreakerState(service string, state int) {
	breakerState.WithLabelValues(norm(service)).Set(float64(state))
}

func IncBreakerTransition(service, to string) {
	breakerTransitionsTotal.WithLabelValues(norm(service), norm(to)).Inc()
}
