package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(alertsTotal, failureWindowRequests, failureWindowFailures) }

var alertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_alerts_total",
		Help: "Total admin alerts, labeled by type and outcome.",
	},
	[]string{"type", "status"}, // status: 'sent', 'suppressed', 'failed'
)

var failureWindowRequests = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "failure_window_requests",
		Help: "Requests observed in the current failure rate window.",
	},
)

var failureWindowFailures = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "failure_window_failures",
		Help: "Failures observed in the current failure rate window.",
	},
)

func IncAlert(alertType, status string) {
	alertsTotal.WithLabelValues(norm(alertType), norm(status)).Inc()
}

func ObserveFailureRate(requests, failures int) {
	failureWindowRequests.Set(float64(requests))
	failureWindowFailures.Set(float64(failures))
}
