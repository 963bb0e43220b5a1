package repository

import (
	"context"
	"time"

	"ai-analysis-ops/internal/domain/model"
)

// MetricRepository persists raw analysis metric events and their
// hourly aggregates.
type MetricRepository interface {
	Insert(ctx context.Context, tx Tx, m *model.AnalysisMetric) error
	ListRange(ctx context.Context, tx Tx, start, end time.Time) ([]*model.AnalysisMetric, error)
	ListRecent(ctx context.Context, tx Tx, since time.Time, limit int) ([]*model.AnalysisMetric, error)
	ListFailures(ctx context.Context, tx Tx, start, end time.Time) ([]*model.AnalysisMetric, error)

	InsertHourly(ctx context.Context, tx Tx, h *model.HourlyMetric) error
	ListHourlyRange(ctx context.Context, tx Tx, start, end time.Time) ([]*model.HourlyMetric, error)
}
