package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
)

var _ repository.MetricRepository = (*metricRepo)(nil)

type metricRepo struct {
	pool *pgxpool.Pool
}

func NewMetricRepo(pool *pgxpool.Pool) *metricRepo {
	return &metricRepo{pool: pool}
}

func (r *metricRepo) Insert(ctx context.Context, tx repository.Tx, m *model.AnalysisMetric) error {
	var meta []byte
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metric metadata: %w", err)
		}
		meta = b
	}

	const q = `
INSERT INTO analysis_metrics (
  session_id, tier, event_type, duration_ms, part_number,
  error_code, error_message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		m.SessionID, m.Tier, m.EventType, m.DurationMs, m.PartNumber,
		m.ErrorCode, m.ErrorMessage, meta, m.CreatedAt)
	if err != nil {
		return err
	}
	return row.Scan(&m.ID)
}

const metricColumns = `
id, session_id, tier, event_type, duration_ms, part_number,
error_code, error_message, metadata, created_at`

func (r *metricRepo) ListRange(ctx context.Context, tx repository.Tx, start, end time.Time) ([]*model.AnalysisMetric, error) {
	const q = `SELECT ` + metricColumns + `
FROM analysis_metrics
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q, start, end)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

func (r *metricRepo) ListRecent(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.AnalysisMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + metricColumns + `
FROM analysis_metrics
WHERE created_at >= $1
ORDER BY created_at DESC
LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, since, limit)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

func (r *metricRepo) ListFailures(ctx context.Context, tx repository.Tx, start, end time.Time) ([]*model.AnalysisMetric, error) {
	const q = `SELECT ` + metricColumns + `
FROM analysis_metrics
WHERE event_type = 'failure' AND created_at >= $1 AND created_at < $2
ORDER BY created_at ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q, start, end)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

func (r *metricRepo) InsertHourly(ctx context.Context, tx repository.Tx, h *model.HourlyMetric) error {
	// Re-running aggregation for the same hour overwrites the row.
	const q = `
INSERT INTO hourly_metrics (
  hour_start, total_requests, successful_requests, failed_requests,
  partial_successes, retried_requests,
  avg_duration_ms, p50_duration_ms, p95_duration_ms, p99_duration_ms,
  tier_low, tier_mid, tier_high, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (hour_start) DO UPDATE SET
  total_requests = EXCLUDED.total_requests,
  successful_requests = EXCLUDED.successful_requests,
  failed_requests = EXCLUDED.failed_requests,
  partial_successes = EXCLUDED.partial_successes,
  retried_requests = EXCLUDED.retried_requests,
  avg_duration_ms = EXCLUDED.avg_duration_ms,
  p50_duration_ms = EXCLUDED.p50_duration_ms,
  p95_duration_ms = EXCLUDED.p95_duration_ms,
  p99_duration_ms = EXCLUDED.p99_duration_ms,
  tier_low = EXCLUDED.tier_low,
  tier_mid = EXCLUDED.tier_mid,
  tier_high = EXCLUDED.tier_high,
  created_at = EXCLUDED.created_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		h.HourStart, h.TotalRequests, h.SuccessfulRequests, h.FailedRequests,
		h.PartialSuccesses, h.RetriedRequests,
		h.AvgDurationMs, h.P50DurationMs, h.P95DurationMs, h.P99DurationMs,
		h.TierLow, h.TierMid, h.TierHigh, h.CreatedAt)
	return err
}

func (r *metricRepo) ListHourlyRange(ctx context.Context, tx repository.Tx, start, end time.Time) ([]*model.HourlyMetric, error) {
	const q = `
SELECT id, hour_start, total_requests, successful_requests, failed_requests,
       partial_successes, retried_requests,
       avg_duration_ms, p50_duration_ms, p95_duration_ms, p99_duration_ms,
       tier_low, tier_mid, tier_high, created_at
FROM hourly_metrics
WHERE hour_start >= $1 AND hour_start < $2
ORDER BY hour_start ASC;`

	rows, err := pickRows(ctx, r.pool, tx, q, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.HourlyMetric
	for rows.Next() {
		var h model.HourlyMetric
		err := rows.Scan(
			&h.ID, &h.HourStart, &h.TotalRequests, &h.SuccessfulRequests, &h.FailedRequests,
			&h.PartialSuccesses, &h.RetriedRequests,
			&h.AvgDurationMs, &h.P50DurationMs, &h.P95DurationMs, &h.P99DurationMs,
			&h.TierLow, &h.TierMid, &h.TierHigh, &h.CreatedAt,
		)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func scanMetrics(rows pgx.Rows) ([]*model.AnalysisMetric, error) {
	defer rows.Close()
	var out []*model.AnalysisMetric
	for rows.Next() {
		var m model.AnalysisMetric
		var tier, eventType string
		var meta []byte
		err := rows.Scan(
			&m.ID, &m.SessionID, &tier, &eventType, &m.DurationMs, &m.PartNumber,
			&m.ErrorCode, &m.ErrorMessage, &meta, &m.CreatedAt,
		)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m.Tier = model.Tier(tier)
		m.EventType = model.MetricEventType(eventType)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &m.Metadata)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
