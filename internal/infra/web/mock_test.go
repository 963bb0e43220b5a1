//go:build !integration

package web

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/usecase"

	"github.com/rs/zerolog"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Mock Operation UseCase ---

// mockOps keeps operations in a map and honors the transition table,
// which is all the handlers need.
type mockOps struct {
	mu     sync.Mutex
	store  map[string]*model.Operation
	events map[string][]*model.OperationEvent
	nextID int
}

func newMockOps() *mockOps {
	return &mockOps{
		store:  make(map[string]*model.Operation),
		events: make(map[string][]*model.OperationEvent),
	}
}

// seed installs an operation directly, bypassing lifecycle rules.
func (m *mockOps) seed(op *model.Operation) *model.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.OperationID == "" {
		m.nextID++
		op.OperationID = fmt.Sprintf("op-%d", m.nextID)
	}
	m.store[op.OperationID] = op
	return op
}

func (m *mockOps) Create(_ context.Context, sessionID string, tier model.Tier, trigger model.TriggerSource) (*model.Operation, error) {
	cfg, err := model.ConfigForTier(tier)
	if err != nil {
		return nil, err
	}
	op := &model.Operation{
		SessionID:   sessionID,
		Tier:        tier,
		State:       model.StateInitialized,
		TotalParts:  cfg.TotalParts,
		TriggeredBy: trigger,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	return m.seed(op), nil
}

func (m *mockOps) transition(operationID string, to model.OperationState, eventType model.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.store[operationID]
	if !ok {
		return domain.ErrNotFound
	}
	if !model.IsValidTransition(op.State, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, op.State, to)
	}
	prev := op.State
	op.State = to
	op.UpdatedAt = time.Now()
	m.events[operationID] = append(m.events[operationID], &model.OperationEvent{
		OperationID:   operationID,
		SessionID:     op.SessionID,
		EventType:     eventType,
		PreviousState: prev,
		NewState:      to,
		CreatedAt:     time.Now(),
	})
	return nil
}

func (m *mockOps) Start(_ context.Context, operationID string, _ usecase.Actor) error {
	return m.transition(operationID, model.StateGenerating, model.EventOperationStarted)
}

func (m *mockOps) StartPart(_ context.Context, operationID string, _ int, _ usecase.Actor) error {
	return m.transition(operationID, model.StateGenerating, model.EventPartStarted)
}

func (m *mockOps) CompletePart(_ context.Context, operationID string, _ int, _ int64, _ int, _ usecase.Actor) error {
	return m.transition(operationID, model.StatePartCompleted, model.EventPartCompleted)
}

func (m *mockOps) Fail(_ context.Context, operationID string, _ *int, _, _ string, _ usecase.Actor) error {
	return m.transition(operationID, model.StateFailed, model.EventOperationFailed)
}

func (m *mockOps) Pause(_ context.Context, operationID string, _ usecase.Actor, _ string) error {
	return m.transition(operationID, model.StatePaused, model.EventOperationPaused)
}

func (m *mockOps) Resume(_ context.Context, operationID string, _ usecase.Actor, _ string) error {
	return m.transition(operationID, model.StateGenerating, model.EventOperationResumed)
}

func (m *mockOps) Cancel(_ context.Context, operationID string, _ usecase.Actor, _ string) error {
	return m.transition(operationID, model.StateCancelled, model.EventOperationCancelled)
}

func (m *mockOps) Retry(_ context.Context, operationID string, _ usecase.Actor, _ model.TriggerSource) error {
	if err := m.transition(operationID, model.StateGenerating, model.EventOperationRetried); err != nil {
		return err
	}
	m.mu.Lock()
	m.store[operationID].RetryCount++
	m.mu.Unlock()
	return nil
}

func (m *mockOps) RetryBySession(ctx context.Context, sessionID string, actor usecase.Actor, trigger model.TriggerSource) error {
	op, err := m.GetBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.Retry(ctx, op.OperationID, actor, trigger)
}

func (m *mockOps) AddAdminNote(_ context.Context, operationID string, _ usecase.Actor, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.store[operationID]
	if !ok {
		return domain.ErrNotFound
	}
	if op.AdminNotes != "" {
		op.AdminNotes += "\n"
	}
	op.AdminNotes += note
	m.events[operationID] = append(m.events[operationID], &model.OperationEvent{
		OperationID: operationID,
		EventType:   model.EventAdminIntervention,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *mockOps) Get(_ context.Context, operationID string) (*model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.store[operationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *mockOps) GetBySession(_ context.Context, sessionID string) (*model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.store {
		if op.SessionID == sessionID {
			cp := *op
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockOps) ListByState(_ context.Context, state model.OperationState, _ int) ([]*model.Operation, error) {
	if !state.Known() {
		return nil, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Operation
	for _, op := range m.store {
		if op.State == state {
			cp := *op
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOps) Events(_ context.Context, operationID string) ([]*model.OperationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.OperationEvent(nil), m.events[operationID]...), nil
}

func (m *mockOps) VerifyHistory(ctx context.Context, operationID string) (bool, error) {
	if _, err := m.Get(ctx, operationID); err != nil {
		return false, err
	}
	return true, nil
}

// --- Mock Retry Queue UseCase ---

type mockQueue struct {
	mu        sync.Mutex
	stats     model.QueueStats
	cancelled []string
}

func (m *mockQueue) Enqueue(context.Context, usecase.EnqueueParams) bool { return true }

func (m *mockQueue) DequeueNext(context.Context) (*model.RetryQueueItem, error) { return nil, nil }

func (m *mockQueue) MarkCompleted(context.Context, string) {}

func (m *mockQueue) MarkForRetry(context.Context, string, string) bool { return true }

func (m *mockQueue) Cancel(_ context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, sessionID)
}

func (m *mockQueue) ReclaimStale(context.Context, time.Duration) int { return 0 }

func (m *mockQueue) Stats(context.Context) model.QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mockQueue) cancelledSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

// --- Mock Metrics UseCase ---

type mockMetrics struct {
	historical *usecase.HistoricalMetrics
	errors     []model.ErrorSummary
	recent     []*model.AnalysisMetric
	histErr    error
}

func (m *mockMetrics) Record(context.Context, usecase.RecordMetricParams) {}

func (m *mockMetrics) RecordRequest(context.Context, string, model.Tier, map[string]any) {}

func (m *mockMetrics) RecordPartCompletion(context.Context, string, model.Tier, int, int64) {}

func (m *mockMetrics) RecordSuccess(context.Context, string, model.Tier, int64) {}

func (m *mockMetrics) RecordFailure(context.Context, string, model.Tier, int64, string, string) {}

func (m *mockMetrics) RecordRetry(context.Context, string, model.Tier, int) {}

func (m *mockMetrics) AggregateHour(context.Context, time.Time) error { return nil }

func (m *mockMetrics) RunHourlyAggregation(context.Context) error { return nil }

func (m *mockMetrics) Historical(context.Context, time.Time, time.Time) (*usecase.HistoricalMetrics, error) {
	if m.histErr != nil {
		return nil, m.histErr
	}
	return m.historical, nil
}

func (m *mockMetrics) Recent(context.Context, time.Time, int) ([]*model.AnalysisMetric, error) {
	return m.recent, nil
}

func (m *mockMetrics) RecentHistorical(ctx context.Context, _ int) (*usecase.HistoricalMetrics, error) {
	return m.Historical(ctx, time.Time{}, time.Time{})
}

func (m *mockMetrics) ErrorSummary(context.Context, time.Time, time.Time) ([]model.ErrorSummary, error) {
	return m.errors, nil
}

// --- Mock Alert UseCase ---

type mockAlerts struct {
	stats usecase.FailureRateStats
}

func (m *mockAlerts) SendAlert(context.Context, *model.AdminAlert) bool { return true }

func (m *mockAlerts) CircuitBreakerOpened(context.Context, string, int, string) bool { return true }

func (m *mockAlerts) HighFailureRate(context.Context, float64, float64, int, []string) bool {
	return true
}

func (m *mockAlerts) CriticalError(context.Context, string, string, map[string]any) bool {
	return true
}

func (m *mockAlerts) SystemIssue(context.Context, string, string, model.AlertSeverity, map[string]any) bool {
	return true
}

func (m *mockAlerts) RecordRequestOutcome(bool) {}

func (m *mockAlerts) FailureRateStats() usecase.FailureRateStats { return m.stats }

// --- Mock Alert Log Repository ---

type mockAlertLog struct {
	alerts  []*model.AdminAlert
	listErr error
}

func (m *mockAlertLog) Save(_ context.Context, _ repository.Tx, alert *model.AdminAlert) error {
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockAlertLog) ListRecent(_ context.Context, _ repository.Tx, _ int) ([]*model.AdminAlert, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.alerts, nil
}
