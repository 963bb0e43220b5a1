package sched

import (
	"context"
	"sync/atomic"
	"time"

	"ai-analysis-ops/internal/usecase"

	"github.com/rs/zerolog"
)

// RetryWorker periodically drains the retry queue through the
// processor. Ticks overlap-protect themselves: if a drain is still
// running when the next tick fires, that tick is skipped.
type RetryWorker struct {
	interval    time.Duration
	execTimeout time.Duration
	processor   usecase.QueueProcessor
	log         *zerolog.Logger

	busy atomic.Bool
}

func NewRetryWorker(interval, execTimeout time.Duration, processor usecase.QueueProcessor, logger *zerolog.Logger) *RetryWorker {
	l := logger.With().Str("component", "RetryWorker").Logger()
	return &RetryWorker{
		interval:    interval,
		execTimeout: execTimeout,
		processor:   processor,
		log:         &l,
	}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting retry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retry worker")
			return ctx.Err()
		case <-ticker.C:
			if !w.busy.CompareAndSwap(false, true) {
				w.log.Debug().Msg("previous drain still running, skipping tick")
				continue
			}
			w.drain(ctx)
			w.busy.Store(false)
		}
	}
}

// drain processes due items until the queue is empty or the context
// ends. A panic in one item is contained so the worker survives.
func (w *RetryWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.processOne(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("retry processing error")
			return
		}
		if !processed {
			return
		}
	}
}

func (w *RetryWorker) processOne(ctx context.Context) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("panic while processing queue item")
			processed = false
			err = nil
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.execTimeout)
	defer cancel()
	return w.processor.ProcessNext(runCtx)
}
