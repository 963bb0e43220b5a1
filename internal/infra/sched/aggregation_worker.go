package sched

import (
	"context"
	"time"

	"ai-analysis-ops/internal/usecase"

	"github.com/rs/zerolog"
)

// AggregationWorker rolls raw analysis metrics into hourly rows. It
// fires shortly after each hour boundary so the previous hour is
// complete when aggregated.
type AggregationWorker struct {
	metrics usecase.MetricsUseCase
	log     *zerolog.Logger
}

func NewAggregationWorker(metrics usecase.MetricsUseCase, logger *zerolog.Logger) *AggregationWorker {
	l := logger.With().Str("component", "AggregationWorker").Logger()
	return &AggregationWorker{metrics: metrics, log: &l}
}

func (w *AggregationWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting aggregation worker")

	// Catch up on the previous hour immediately in case the process
	// was down across a boundary.
	if err := w.metrics.RunHourlyAggregation(ctx); err != nil {
		w.log.Error().Err(err).Msg("startup aggregation failed")
	}

	for {
		next := time.Now().Truncate(time.Hour).Add(time.Hour + time.Minute)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping aggregation worker")
			return ctx.Err()
		case <-time.After(time.Until(next)):
			if err := w.metrics.RunHourlyAggregation(ctx); err != nil {
				w.log.Error().Err(err).Msg("hourly aggregation failed")
			}
		}
	}
}
