package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(operationTransitionsTotal) }

var operationTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "operation_transitions_total",
		Help: "Total number of operation state transitions, labeled by edge.",
	},
	[]string{"from", "to"},
)

func IncOperationTransition(from, to string) {
	operationTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
