// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/adapter"
	"ai-analysis-ops/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// mockTxManager runs the callback without a real transaction.
type noTx struct{}

type mockTxManager struct {
	beginErr error
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(ctx, noTx{})
}

// memOperationRepo is a small in-memory implementation used by unit tests.
type memOperationRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Operation // by OperationID
	saveErr error
}

func newMemOperationRepo() *memOperationRepo {
	return &memOperationRepo{store: make(map[string]*model.Operation)}
}

func (m *memOperationRepo) Save(_ context.Context, _ repository.Tx, op *model.Operation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *op
	m.store[op.OperationID] = &cp
	return nil
}

func (m *memOperationRepo) FindByOperationID(_ context.Context, _ repository.Tx, operationID string) (*model.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.store[operationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *memOperationRepo) FindBySessionID(_ context.Context, _ repository.Tx, sessionID string) (*model.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *model.Operation
	for _, op := range m.store {
		if op.SessionID != sessionID {
			continue
		}
		if newest == nil || op.CreatedAt.After(newest.CreatedAt) {
			newest = op
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *memOperationRepo) ListByState(_ context.Context, _ repository.Tx, state model.OperationState, limit int) ([]*model.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Operation
	for _, op := range m.store {
		if op.State == state {
			cp := *op
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memEventRepo is an in-memory append-only event log.
type memEventRepo struct {
	mu        sync.RWMutex
	events    []*model.OperationEvent
	appendErr error
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{}
}

func (m *memEventRepo) Append(_ context.Context, _ repository.Tx, event *model.OperationEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *memEventRepo) ListForOperation(_ context.Context, _ repository.Tx, operationID string) ([]*model.OperationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.OperationEvent
	for _, e := range m.events {
		if e.OperationID == operationID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memRetryQueueRepo keeps queue items in memory with the same
// semantics the Postgres repo provides.
type memRetryQueueRepo struct {
	mu        sync.Mutex
	items     []*model.RetryQueueItem
	nextID    int64
	insertErr error
	findErr   error
	statsErr  error
}

func newMemRetryQueueRepo() *memRetryQueueRepo {
	return &memRetryQueueRepo{}
}

func (m *memRetryQueueRepo) Insert(_ context.Context, _ repository.Tx, item *model.RetryQueueItem) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	cp := *item
	m.items = append(m.items, &cp)
	return nil
}

func (m *memRetryQueueRepo) FindActiveBySession(_ context.Context, _ repository.Tx, sessionID string) (*model.RetryQueueItem, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SessionID == sessionID && (it.Status == model.QueuePending || it.Status == model.QueueProcessing) {
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRetryQueueRepo) FindBySession(_ context.Context, _ repository.Tx, sessionID string) (*model.RetryQueueItem, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *model.RetryQueueItem
	for _, it := range m.items {
		if it.SessionID != sessionID {
			continue
		}
		if newest == nil || it.CreatedAt.After(newest.CreatedAt) {
			newest = it
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *memRetryQueueRepo) FetchAndMarkProcessing(_ context.Context, now time.Time) (*model.RetryQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.RetryQueueItem
	for _, it := range m.items {
		if it.Status != model.QueuePending {
			continue
		}
		if it.NextRetryAt != nil && it.NextRetryAt.After(now) {
			continue
		}
		if best == nil ||
			it.Priority < best.Priority ||
			(it.Priority == best.Priority && it.CreatedAt.Before(best.CreatedAt)) {
			best = it
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	best.Status = model.QueueProcessing
	best.LastAttemptAt = &now
	best.UpdatedAt = now
	cp := *best
	return &cp, nil
}

func (m *memRetryQueueRepo) UpdateStatus(_ context.Context, _ repository.Tx, sessionID string, status model.QueueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SessionID == sessionID && (it.Status == model.QueuePending || it.Status == model.QueueProcessing) {
			it.Status = status
			it.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memRetryQueueRepo) ScheduleRetry(_ context.Context, _ repository.Tx, sessionID string, retryCount int, lastError string, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SessionID == sessionID && it.Status == model.QueueProcessing {
			it.Status = model.QueuePending
			it.RetryCount = retryCount
			it.LastError = lastError
			it.NextRetryAt = &nextRetryAt
			it.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memRetryQueueRepo) MarkExhausted(_ context.Context, _ repository.Tx, sessionID string, retryCount int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.SessionID == sessionID && (it.Status == model.QueuePending || it.Status == model.QueueProcessing) {
			it.Status = model.QueueFailed
			it.RetryCount = retryCount
			it.LastError = lastError
			it.NextRetryAt = nil
			it.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memRetryQueueRepo) ReclaimStale(_ context.Context, _ repository.Tx, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.Status == model.QueueProcessing && it.LastAttemptAt != nil && it.LastAttemptAt.Before(cutoff) {
			it.Status = model.QueuePending
			n++
		}
	}
	return n, nil
}

func (m *memRetryQueueRepo) Stats(_ context.Context, _ repository.Tx) (model.QueueStats, error) {
	if m.statsErr != nil {
		return model.QueueStats{}, m.statsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.QueueStats
	for _, it := range m.items {
		switch it.Status {
		case model.QueuePending:
			s.Pending++
		case model.QueueProcessing:
			s.Processing++
		case model.QueueCompleted:
			s.Completed++
		case model.QueueFailed:
			s.Failed++
		case model.QueueCancelled:
			s.Cancelled++
		}
		s.Total++
	}
	return s, nil
}

// memAlertLogRepo records saved alerts for assertions.
type memAlertLogRepo struct {
	mu      sync.Mutex
	saved   []*model.AdminAlert
	saveErr error
}

func newMemAlertLogRepo() *memAlertLogRepo {
	return &memAlertLogRepo{}
}

func (m *memAlertLogRepo) Save(_ context.Context, _ repository.Tx, alert *model.AdminAlert) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.saved = append(m.saved, &cp)
	return nil
}

func (m *memAlertLogRepo) ListRecent(_ context.Context, _ repository.Tx, limit int) ([]*model.AdminAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.AdminAlert, len(m.saved))
	copy(out, m.saved)
	return out, nil
}

// memMetricRepo stores raw and hourly metric rows in memory.
type memMetricRepo struct {
	mu        sync.Mutex
	raw       []*model.AnalysisMetric
	hourly    []*model.HourlyMetric
	insertErr error
	listErr   error
}

func newMemMetricRepo() *memMetricRepo {
	return &memMetricRepo{}
}

func (m *memMetricRepo) Insert(_ context.Context, _ repository.Tx, row *model.AnalysisMetric) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row.ID = int64(len(m.raw) + 1)
	cp := *row
	m.raw = append(m.raw, &cp)
	return nil
}

func (m *memMetricRepo) ListRange(_ context.Context, _ repository.Tx, start, end time.Time) ([]*model.AnalysisMetric, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AnalysisMetric
	for _, r := range m.raw {
		if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMetricRepo) ListRecent(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.AnalysisMetric, error) {
	out, err := m.ListRange(ctx, tx, since, time.Now().Add(time.Hour))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMetricRepo) ListFailures(ctx context.Context, tx repository.Tx, start, end time.Time) ([]*model.AnalysisMetric, error) {
	rows, err := m.ListRange(ctx, tx, start, end)
	if err != nil {
		return nil, err
	}
	var out []*model.AnalysisMetric
	for _, r := range rows {
		if r.EventType == model.MetricFailure {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMetricRepo) InsertHourly(_ context.Context, _ repository.Tx, h *model.HourlyMetric) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.hourly {
		if existing.HourStart.Equal(h.HourStart) {
			cp := *h
			m.hourly[i] = &cp
			return nil
		}
	}
	cp := *h
	m.hourly = append(m.hourly, &cp)
	return nil
}

func (m *memMetricRepo) ListHourlyRange(_ context.Context, _ repository.Tx, start, end time.Time) ([]*model.HourlyMetric, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.HourlyMetric
	for _, h := range m.hourly {
		if !h.HourStart.Before(start) && h.HourStart.Before(end) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStart.Before(out[j].HourStart) })
	return out, nil
}

// stubSink is a NotificationSink with a programmable response.
type stubSink struct {
	mu         sync.Mutex
	NotifyFunc func(ctx context.Context, title, content string) (bool, error)
	titles     []string
	contents   []string
}

func (s *stubSink) Notify(ctx context.Context, title, content string) (bool, error) {
	s.mu.Lock()
	s.titles = append(s.titles, title)
	s.contents = append(s.contents, content)
	s.mu.Unlock()
	if s.NotifyFunc != nil {
		return s.NotifyFunc(ctx, title, content)
	}
	return true, nil
}

func (s *stubSink) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

func (s *stubSink) titleAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.titles) {
		return ""
	}
	return s.titles[i]
}

// stubExecutor is a JobExecutor with a programmable response.
type stubExecutor struct {
	ExecuteFunc func(ctx context.Context, sessionID string, tier model.Tier, problemStatement string) (bool, error)
	calls       int
}

func (s *stubExecutor) Execute(ctx context.Context, sessionID string, tier model.Tier, problemStatement string) (bool, error) {
	s.calls++
	if s.ExecuteFunc != nil {
		return s.ExecuteFunc(ctx, sessionID, tier, problemStatement)
	}
	return true, nil
}

// stubBreaker implements CircuitBreaker for executor tests.
type stubBreaker struct {
	allowErr  error
	successes int
	failures  int
}

func (s *stubBreaker) Allow() error               { return s.allowErr }
func (s *stubBreaker) RecordSuccess()             { s.successes++ }
func (s *stubBreaker) RecordFailureErr(err error) { s.failures++ }

// stubAlerts records alert calls without dispatching anything.
type stubAlerts struct {
	mu            sync.Mutex
	criticalTypes []string
	outcomes      []bool
}

func (s *stubAlerts) SendAlert(_ context.Context, _ *model.AdminAlert) bool { return true }

func (s *stubAlerts) CircuitBreakerOpened(_ context.Context, _ string, _ int, _ string) bool {
	return true
}

func (s *stubAlerts) HighFailureRate(_ context.Context, _, _ float64, _ int, _ []string) bool {
	return true
}

func (s *stubAlerts) CriticalError(_ context.Context, errorType, _ string, _ map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criticalTypes = append(s.criticalTypes, errorType)
	return true
}

func (s *stubAlerts) SystemIssue(_ context.Context, _, _ string, _ model.AlertSeverity, _ map[string]any) bool {
	return true
}

func (s *stubAlerts) RecordRequestOutcome(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, success)
}

func (s *stubAlerts) FailureRateStats() FailureRateStats { return FailureRateStats{} }

func (s *stubAlerts) criticals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.criticalTypes))
	copy(out, s.criticalTypes)
	return out
}

// stubAI is an AIServiceAdapter with a programmable completion.
type stubAI struct {
	CompleteFunc    func(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error)
	CountTokensFunc func(ctx context.Context, messages []adapter.Message) (int, error)
	calls           int
	countCalls      int
}

func (s *stubAI) Complete(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	s.calls++
	if s.CompleteFunc != nil {
		return s.CompleteFunc(ctx, messages)
	}
	return "generated", adapter.Usage{TotalTokens: 100}, nil
}

func (s *stubAI) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	s.countCalls++
	if s.CountTokensFunc != nil {
		return s.CountTokensFunc(ctx, messages)
	}
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}
