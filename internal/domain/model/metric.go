package model

import "time"

// MetricEventType classifies a persisted analysis metric row.
type MetricEventType string

const (
	MetricRequest        MetricEventType = "request"
	MetricPartComplete   MetricEventType = "part_complete"
	MetricSuccess        MetricEventType = "success"
	MetricFailure        MetricEventType = "failure"
	MetricRetry          MetricEventType = "retry"
	MetricPartialSuccess MetricEventType = "partial_success"
)

// AnalysisMetric is one raw metric event persisted for analytics.
// Recording is best-effort and must never break the main flow.
type AnalysisMetric struct {
	ID           int64
	SessionID    string
	Tier         Tier
	EventType    MetricEventType
	DurationMs   *int64
	PartNumber   *int
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// HourlyMetric is one pre-aggregated hour of analysis activity.
type HourlyMetric struct {
	ID        int64
	HourStart time.Time

	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	PartialSuccesses   int
	RetriedRequests    int

	AvgDurationMs *int64
	P50DurationMs *int64
	P95DurationMs *int64
	P99DurationMs *int64

	TierLow  int
	TierMid  int
	TierHigh int

	CreatedAt time.Time
}

// ErrorSummary groups failure metrics by error code over a time range.
type ErrorSummary struct {
	ErrorCode      string
	Count          int
	LastOccurrence time.Time
}
