package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueOpsTotal, queueDepth) }

var queueOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retry_queue_ops_total",
		Help: "Total retry queue operations, labeled by kind.",
	},
	[]string{"op"}, // 'enqueue', 'dequeue', 'complete', 'retry_scheduled', 'exhausted', 'cancel', 'reclaimed'
)

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "retry_queue_depth",
		Help: "Current number of retry queue items by status.",
	},
	[]string{"status"}, // 'pending', 'processing'
)

func IncQueueOp(op string) {
	queueOpsTotal.WithLabelValues(norm(op)).Inc()
}

func SetQueueDepth(pending, processing int) {
	queueDepth.WithLabelValues("pending").Set(float64(pending))
	queueDepth.WithLabelValues("processing").Set(float64(processing))
}
