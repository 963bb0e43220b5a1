package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ MetricsUseCase = (*metricsUC)(nil)

// RecordMetricParams describes one metric event to persist.
type RecordMetricParams struct {
	SessionID    string
	Tier         model.Tier
	EventType    model.MetricEventType
	DurationMs   *int64
	PartNumber   *int
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]any
}

// HistoricalMetrics summarizes aggregated activity over a time range.
type HistoricalMetrics struct {
	TotalRequests      int           `json:"totalRequests"`
	SuccessfulRequests int           `json:"successfulRequests"`
	FailedRequests     int           `json:"failedRequests"`
	PartialSuccesses   int           `json:"partialSuccesses"`
	RetriedRequests    int           `json:"retriedRequests"`
	SuccessRate        float64       `json:"successRate"`
	AvgDurationMs      *int64        `json:"avgDurationMs"`
	P95DurationMs      *int64        `json:"p95DurationMs"`
	ByTier             TierCounts    `json:"byTier"`
	Hourly             []HourlyPoint `json:"hourlyData"`
}

type TierCounts struct {
	Low  int `json:"low"`
	Mid  int `json:"mid"`
	High int `json:"high"`
}

type HourlyPoint struct {
	Hour          time.Time `json:"hour"`
	Requests      int       `json:"requests"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	AvgDurationMs *int64    `json:"avgDuration"`
}

// MetricsUseCase persists analysis metrics for long-term analytics and
// aggregates them hourly. Recording is best-effort: failures are
// logged and swallowed so metrics never break the main flow.
type MetricsUseCase interface {
	Record(ctx context.Context, params RecordMetricParams)
	RecordRequest(ctx context.Context, sessionID string, tier model.Tier, metadata map[string]any)
	RecordPartCompletion(ctx context.Context, sessionID string, tier model.Tier, partNumber int, durationMs int64)
	RecordSuccess(ctx context.Context, sessionID string, tier model.Tier, durationMs int64)
	RecordFailure(ctx context.Context, sessionID string, tier model.Tier, durationMs int64, errorCode, errorMessage string)
	RecordRetry(ctx context.Context, sessionID string, tier model.Tier, retryCount int)

	// AggregateHour rolls the raw metrics of one hour into a row.
	AggregateHour(ctx context.Context, hourStart time.Time) error
	// RunHourlyAggregation aggregates the previous full hour.
	RunHourlyAggregation(ctx context.Context) error

	Historical(ctx context.Context, start, end time.Time) (*HistoricalMetrics, error)
	RecentHistorical(ctx context.Context, hours int) (*HistoricalMetrics, error)
	// Recent returns the newest raw metric rows since the given time.
	Recent(ctx context.Context, since time.Time, limit int) ([]*model.AnalysisMetric, error)
	ErrorSummary(ctx context.Context, start, end time.Time) ([]model.ErrorSummary, error)
}

type metricsUC struct {
	repo repository.MetricRepository
	log  *zerolog.Logger
}

func NewMetricsUseCase(repo repository.MetricRepository, logger *zerolog.Logger) *metricsUC {
	l := logger.With().Str("component", "MetricsUC").Logger()
	return &metricsUC{repo: repo, log: &l}
}

func (m *metricsUC) Record(ctx context.Context, params RecordMetricParams) {
	row := &model.AnalysisMetric{
		SessionID:    params.SessionID,
		Tier:         params.Tier,
		EventType:    params.EventType,
		DurationMs:   params.DurationMs,
		PartNumber:   params.PartNumber,
		ErrorCode:    params.ErrorCode,
		ErrorMessage: params.ErrorMessage,
		Metadata:     params.Metadata,
		CreatedAt:    time.Now(),
	}
	if err := m.repo.Insert(ctx, repository.NoTX, row); err != nil {
		m.log.Error().Err(err).Str("session_id", params.SessionID).Str("event", string(params.EventType)).Msg("failed to record metric")
	}
}

func (m *metricsUC) RecordRequest(ctx context.Context, sessionID string, tier model.Tier, metadata map[string]any) {
	m.Record(ctx, RecordMetricParams{SessionID: sessionID, Tier: tier, EventType: model.MetricRequest, Metadata: metadata})
}

func (m *metricsUC) RecordPartCompletion(ctx context.Context, sessionID string, tier model.Tier, partNumber int, durationMs int64) {
	m.Record(ctx, RecordMetricParams{SessionID: sessionID, Tier: tier, EventType: model.MetricPartComplete, PartNumber: &partNumber, DurationMs: &durationMs})
}

func (m *metricsUC) RecordSuccess(ctx context.Context, sessionID string, tier model.Tier, durationMs int64) {
	m.Record(ctx, RecordMetricParams{SessionID: sessionID, Tier: tier, EventType: model.MetricSuccess, DurationMs: &durationMs})
}

func (m *metricsUC) RecordFailure(ctx context.Context, sessionID string, tier model.Tier, durationMs int64, errorCode, errorMessage string) {
	m.Record(ctx, RecordMetricParams{
		SessionID: sessionID, Tier: tier, EventType: model.MetricFailure,
		DurationMs: &durationMs, ErrorCode: errorCode,
		ErrorMessage: model.TruncateError(errorMessage, model.MaxStoredErrorLen),
	})
}

func (m *metricsUC) RecordRetry(ctx context.Context, sessionID string, tier model.Tier, retryCount int) {
	m.Record(ctx, RecordMetricParams{
		SessionID: sessionID, Tier: tier, EventType: model.MetricRetry,
		Metadata: map[string]any{"retryCount": retryCount},
	})
}

func (m *metricsUC) AggregateHour(ctx context.Context, hourStart time.Time) error {
	hourEnd := hourStart.Add(time.Hour)
	rows, err := m.repo.ListRange(ctx, repository.NoTX, hourStart, hourEnd)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	h := &model.HourlyMetric{HourStart: hourStart, CreatedAt: time.Now()}
	var durations []int64
	for _, r := range rows {
		switch r.EventType {
		case model.MetricRequest:
			h.TotalRequests++
			switch r.Tier {
			case model.TierLow:
				h.TierLow++
			case model.TierMid:
				h.TierMid++
			case model.TierHigh:
				h.TierHigh++
			}
		case model.MetricSuccess:
			h.SuccessfulRequests++
			if r.DurationMs != nil {
				durations = append(durations, *r.DurationMs)
			}
		case model.MetricFailure:
			h.FailedRequests++
		case model.MetricPartialSuccess:
			h.PartialSuccesses++
		case model.MetricRetry:
			h.RetriedRequests++
		}
	}

	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		var sum int64
		for _, d := range durations {
			sum += d
		}
		avg := int64(math.Round(float64(sum) / float64(len(durations))))
		h.AvgDurationMs = &avg
		h.P50DurationMs = percentile(durations, 0.5)
		h.P95DurationMs = percentile(durations, 0.95)
		h.P99DurationMs = percentile(durations, 0.99)
	}

	if err := m.repo.InsertHourly(ctx, repository.NoTX, h); err != nil {
		return err
	}
	m.log.Info().Time("hour", hourStart).Int("requests", h.TotalRequests).Msg("hourly metrics aggregated")
	return nil
}

func (m *metricsUC) RunHourlyAggregation(ctx context.Context) error {
	prev := time.Now().Truncate(time.Hour).Add(-time.Hour)
	return m.AggregateHour(ctx, prev)
}

func (m *metricsUC) Historical(ctx context.Context, start, end time.Time) (*HistoricalMetrics, error) {
	hourly, err := m.repo.ListHourlyRange(ctx, repository.NoTX, start, end)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read hourly metrics")
		return &HistoricalMetrics{SuccessRate: 100}, nil
	}

	out := &HistoricalMetrics{SuccessRate: 100}
	var avgSum int64
	var avgCount int
	var p95s []int64
	for _, h := range hourly {
		out.TotalRequests += h.TotalRequests
		out.SuccessfulRequests += h.SuccessfulRequests
		out.FailedRequests += h.FailedRequests
		out.PartialSuccesses += h.PartialSuccesses
		out.RetriedRequests += h.RetriedRequests
		out.ByTier.Low += h.TierLow
		out.ByTier.Mid += h.TierMid
		out.ByTier.High += h.TierHigh
		if h.AvgDurationMs != nil {
			avgSum += *h.AvgDurationMs
			avgCount++
		}
		if h.P95DurationMs != nil {
			p95s = append(p95s, *h.P95DurationMs)
		}
		out.Hourly = append(out.Hourly, HourlyPoint{
			Hour:          h.HourStart,
			Requests:      h.TotalRequests,
			Successes:     h.SuccessfulRequests,
			Failures:      h.FailedRequests,
			AvgDurationMs: h.AvgDurationMs,
		})
	}

	if avgCount > 0 {
		avg := int64(math.Round(float64(avgSum) / float64(avgCount)))
		out.AvgDurationMs = &avg
	}
	if len(p95s) > 0 {
		sort.Slice(p95s, func(i, j int) bool { return p95s[i] < p95s[j] })
		out.P95DurationMs = percentile(p95s, 0.95)
	}
	if out.TotalRequests > 0 {
		out.SuccessRate = float64(out.SuccessfulRequests) / float64(out.TotalRequests) * 100
	}
	return out, nil
}

func (m *metricsUC) RecentHistorical(ctx context.Context, hours int) (*HistoricalMetrics, error) {
	if hours <= 0 {
		hours = 24
	}
	end := time.Now()
	return m.Historical(ctx, end.Add(-time.Duration(hours)*time.Hour), end)
}

func (m *metricsUC) Recent(ctx context.Context, since time.Time, limit int) ([]*model.AnalysisMetric, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return m.repo.ListRecent(ctx, repository.NoTX, since, limit)
}

func (m *metricsUC) ErrorSummary(ctx context.Context, start, end time.Time) ([]model.ErrorSummary, error) {
	rows, err := m.repo.ListFailures(ctx, repository.NoTX, start, end)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read failure metrics")
		return nil, nil
	}

	byCode := make(map[string]*model.ErrorSummary)
	for _, r := range rows {
		code := r.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		s, ok := byCode[code]
		if !ok {
			s = &model.ErrorSummary{ErrorCode: code, LastOccurrence: r.CreatedAt}
			byCode[code] = s
		}
		s.Count++
		if r.CreatedAt.After(s.LastOccurrence) {
			s.LastOccurrence = r.CreatedAt
		}
	}

	out := make([]model.ErrorSummary, 0, len(byCode))
	for _, s := range byCode {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func percentile(sorted []int64, p float64) *int64 {
	if len(sorted) == 0 {
		return nil
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	return &v
}
