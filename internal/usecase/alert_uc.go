package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/adapter"
	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertCooldown is how long identical alerts are suppressed.
const AlertCooldown = 5 * time.Minute

// CooldownStore remembers when an alert key was last dispatched. The
// in-memory implementation is enough for a single instance; a Redis
// backing preserves the same contract across replicas.
type CooldownStore interface {
	LastSent(ctx context.Context, key string) (time.Time, bool)
	MarkSent(ctx context.Context, key string, at time.Time)
}

// Compile-time check
var _ AlertUseCase = (*alertUC)(nil)

// AlertUseCase delivers deduplicated, rate-limited operator
// notifications and persists every dispatched alert for audit.
type AlertUseCase interface {
	// SendAlert returns true iff the alert was actually dispatched.
	SendAlert(ctx context.Context, alert *model.AdminAlert) bool

	CircuitBreakerOpened(ctx context.Context, serviceName string, failureCount int, lastError string) bool
	HighFailureRate(ctx context.Context, failureRate, threshold float64, windowMinutes int, recentErrors []string) bool
	CriticalError(ctx context.Context, errorType, message string, metadata map[string]any) bool
	SystemIssue(ctx context.Context, title, message string, severity model.AlertSeverity, metadata map[string]any) bool

	// RecordRequestOutcome feeds the failure-rate monitor. A breach
	// fires a high-failure-rate alert asynchronously; the caller never
	// sees alerting errors.
	RecordRequestOutcome(success bool)
	FailureRateStats() FailureRateStats
}

type alertUC struct {
	alerts   repository.AlertLogRepository
	sink     adapter.NotificationSink
	cooldown CooldownStore
	window   *failureRateWindow
	log      *zerolog.Logger
}

func NewAlertUseCase(
	alerts repository.AlertLogRepository,
	sink adapter.NotificationSink,
	cooldown CooldownStore,
	logger *zerolog.Logger,
) *alertUC {
	l := logger.With().Str("component", "AlertUC").Logger()
	if cooldown == nil {
		cooldown = NewMemoryCooldown()
	}
	return &alertUC{
		alerts:   alerts,
		sink:     sink,
		cooldown: cooldown,
		window:   newFailureRateWindow(),
		log:      &l,
	}
}

func (a *alertUC) SendAlert(ctx context.Context, alert *model.AdminAlert) bool {
	key := alert.Key()

	if last, ok := a.cooldown.LastSent(ctx, key); ok && time.Since(last) < AlertCooldown {
		metrics.IncAlert(string(alert.Type), "suppressed")
		a.log.Debug().Str("key", key).Msg("duplicate alert suppressed")
		return false
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = time.Now()

	// Audit write is best-effort; dispatch proceeds regardless.
	if err := a.alerts.Save(ctx, repository.NoTX, alert); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("failed to persist alert for audit")
	}

	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	ok, err := a.sink.Notify(ctx, title, formatAlertContent(alert))
	if err != nil || !ok {
		metrics.IncAlert(string(alert.Type), "failed")
		a.log.Warn().Err(err).Str("key", key).Msg("alert dispatch failed")
		// Not marking the cooldown lets a genuinely failed send retry
		// sooner than the window.
		return false
	}

	a.cooldown.MarkSent(ctx, key, time.Now())
	metrics.IncAlert(string(alert.Type), "sent")
	a.log.Info().Str("key", key).Str("severity", string(alert.Severity)).Msg("alert sent")
	return true
}

func formatAlertContent(alert *model.AdminAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert Type: %s\n", alert.Type)
	fmt.Fprintf(&b, "Severity: %s\n\n", alert.Severity)
	b.WriteString(alert.Message)
	b.WriteString("\n")

	if len(alert.Metadata) > 0 {
		b.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, alert.Metadata[k])
		}
	}

	fmt.Fprintf(&b, "\nTimestamp: %s\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func (a *alertUC) CircuitBreakerOpened(ctx context.Context, serviceName string, failureCount int, lastError string) bool {
	return a.SendAlert(ctx, &model.AdminAlert{
		Type:  model.AlertCircuitBreakerOpen,
		Title: fmt.Sprintf("Circuit Breaker Opened: %s", serviceName),
		Message: fmt.Sprintf("The circuit breaker for %s has opened due to repeated failures. "+
			"The service will be temporarily unavailable to prevent cascading failures. "+
			"Manual intervention may be required.", serviceName),
		Severity: model.SeverityCritical,
		Metadata: map[string]any{
			"service":      serviceName,
			"failureCount": failureCount,
			"lastError":    model.TruncateError(lastError, model.MaxAlertErrorLen),
		},
	})
}

func (a *alertUC) HighFailureRate(ctx context.Context, failureRate, threshold float64, windowMinutes int, recentErrors []string) bool {
	severity := model.SeverityWarning
	if failureRate > 50 {
		severity = model.SeverityCritical
	}
	if len(recentErrors) > 5 {
		recentErrors = recentErrors[:5]
	}
	return a.SendAlert(ctx, &model.AdminAlert{
		Type:  model.AlertHighFailureRate,
		Title: fmt.Sprintf("High Failure Rate Detected: %.1f%%", failureRate),
		Message: fmt.Sprintf("The analysis failure rate has exceeded the threshold of %.0f%%. "+
			"%.1f%% of requests in the last %d minutes have failed. "+
			"Please investigate the root cause.", threshold, failureRate, windowMinutes),
		Severity: severity,
		Metadata: map[string]any{
			"failureRate":       failureRate,
			"threshold":         threshold,
			"timeWindowMinutes": windowMinutes,
			"recentErrors":      recentErrors,
		},
	})
}

func (a *alertUC) CriticalError(ctx context.Context, errorType, message string, metadata map[string]any) bool {
	md := map[string]any{"errorType": errorType}
	for k, v := range metadata {
		md[k] = v
	}
	return a.SendAlert(ctx, &model.AdminAlert{
		Type:     model.AlertCriticalError,
		Title:    fmt.Sprintf("Critical Error: %s", errorType),
		Message:  message,
		Severity: model.SeverityCritical,
		Metadata: md,
	})
}

func (a *alertUC) SystemIssue(ctx context.Context, title, message string, severity model.AlertSeverity, metadata map[string]any) bool {
	if severity == "" {
		severity = model.SeverityWarning
	}
	return a.SendAlert(ctx, &model.AdminAlert{
		Type:     model.AlertSystemIssue,
		Title:    title,
		Message:  message,
		Severity: severity,
		Metadata: metadata,
	})
}

// ---- failure rate monitoring ----

const (
	failureRateWindowAge   = 15 * time.Minute
	failureRateThreshold   = 30.0
	minRequestsForAlerting = 10
)

// FailureRateStats is a snapshot of the sliding failure window.
type FailureRateStats struct {
	Requests      int     `json:"requests"`
	Failures      int     `json:"failures"`
	FailureRate   float64 `json:"failureRate"`
	WindowMinutes int     `json:"windowMinutes"`
}

type failureRateWindow struct {
	mu          sync.Mutex
	requests    int
	failures    int
	windowStart time.Time
}

func newFailureRateWindow() *failureRateWindow {
	return &failureRateWindow{windowStart: time.Now()}
}

func (a *alertUC) RecordRequestOutcome(success bool) {
	w := a.window
	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.windowStart) > failureRateWindowAge {
		w.requests = 0
		w.failures = 0
		w.windowStart = now
	}
	w.requests++
	if !success {
		w.failures++
	}
	requests, failures := w.requests, w.failures
	w.mu.Unlock()

	metrics.ObserveFailureRate(requests, failures)

	if requests < minRequestsForAlerting {
		return
	}
	rate := float64(failures) / float64(requests) * 100
	if rate < failureRateThreshold {
		return
	}
	// Fire and forget; the reporter must never pay for alerting.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.HighFailureRate(ctx, rate, failureRateThreshold, int(failureRateWindowAge.Minutes()), nil)
	}()
}

func (a *alertUC) FailureRateStats() FailureRateStats {
	w := a.window
	w.mu.Lock()
	defer w.mu.Unlock()
	rate := 0.0
	if w.requests > 0 {
		rate = float64(w.failures) / float64(w.requests) * 100
	}
	return FailureRateStats{
		Requests:      w.requests,
		Failures:      w.failures,
		FailureRate:   rate,
		WindowMinutes: int(failureRateWindowAge.Minutes()),
	}
}

// ---- in-memory cooldown store ----

type memoryCooldown struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

// NewMemoryCooldown returns a process-local CooldownStore.
func NewMemoryCooldown() *memoryCooldown {
	return &memoryCooldown{sent: make(map[string]time.Time)}
}

func (m *memoryCooldown) LastSent(_ context.Context, key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sent[key]
	return t, ok
}

func (m *memoryCooldown) MarkSent(_ context.Context, key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[key] = at

	// Drop stale entries so the map stays bounded.
	cutoff := at.Add(-2 * AlertCooldown)
	for k, v := range m.sent {
		if v.Before(cutoff) {
			delete(m.sent, k)
		}
	}
}
