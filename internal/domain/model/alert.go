package model

import "time"

// AlertType classifies an admin alert.
type AlertType string

const (
	AlertCircuitBreakerOpen AlertType = "circuit_breaker_open"
	AlertHighFailureRate    AlertType = "high_failure_rate"
	AlertCriticalError      AlertType = "critical_error"
	AlertSystemIssue        AlertType = "system_alert"
)

// AlertSeverity ranks an alert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AdminAlert is one attempted operator notification, persisted for audit.
type AdminAlert struct {
	ID        string
	Type      AlertType
	Title     string
	Message   string
	Severity  AlertSeverity
	Metadata  map[string]any
	CreatedAt time.Time
}

// Key computes the deduplication key for an alert: its type, plus the
// metadata "service" entry when present so distinct services of the
// same alert type are not conflated.
func (a *AdminAlert) Key() string {
	if a.Metadata != nil {
		if svc, ok := a.Metadata["service"].(string); ok && svc != "" {
			return string(a.Type) + ":" + svc
		}
	}
	return string(a.Type)
}
