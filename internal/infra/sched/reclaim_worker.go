package sched

import (
	"context"
	"time"

	"ai-analysis-ops/internal/usecase"

	"github.com/rs/zerolog"
)

// ReclaimWorker requeues processing items abandoned by a crashed or
// restarted processor, and refreshes the queue depth gauges.
type ReclaimWorker struct {
	interval time.Duration
	age      time.Duration
	queue    usecase.RetryQueueUseCase
	log      *zerolog.Logger
}

func NewReclaimWorker(interval, age time.Duration, queue usecase.RetryQueueUseCase, logger *zerolog.Logger) *ReclaimWorker {
	l := logger.With().Str("component", "ReclaimWorker").Logger()
	return &ReclaimWorker{interval: interval, age: age, queue: queue, log: &l}
}

func (w *ReclaimWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("age", w.age).Msg("Starting reclaim worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reclaim worker")
			return ctx.Err()
		case <-ticker.C:
			if n := w.queue.ReclaimStale(ctx, w.age); n > 0 {
				w.log.Warn().Int("count", n).Msg("requeued abandoned items")
			}
			w.queue.Stats(ctx)
		}
	}
}
