package usecase

import (
	"context"
	"errors"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ QueueProcessor = (*queueProcessor)(nil)

// QueueProcessor drains the retry queue one item at a time: it claims
// the next due item, moves the failed operation back into generation,
// reruns the analysis and settles the item by the outcome.
type QueueProcessor interface {
	// ProcessNext handles at most one queue item. It returns false
	// when the queue had nothing due.
	ProcessNext(ctx context.Context) (bool, error)
}

type queueProcessor struct {
	queue    RetryQueueUseCase
	ops      OperationUseCase
	executor adapter.JobExecutor
	alerts   AlertUseCase
	metrics  MetricsUseCase
	log      *zerolog.Logger
}

func NewQueueProcessor(
	queue RetryQueueUseCase,
	ops OperationUseCase,
	executor adapter.JobExecutor,
	alerts AlertUseCase,
	metrics MetricsUseCase,
	logger *zerolog.Logger,
) *queueProcessor {
	l := logger.With().Str("component", "QueueProcessor").Logger()
	return &queueProcessor{
		queue:    queue,
		ops:      ops,
		executor: executor,
		alerts:   alerts,
		metrics:  metrics,
		log:      &l,
	}
}

func (p *queueProcessor) ProcessNext(ctx context.Context) (bool, error) {
	item, err := p.queue.DequeueNext(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	p.log.Info().
		Str("session_id", item.SessionID).
		Str("tier", string(item.Tier)).
		Int("retry_count", item.RetryCount).
		Msg("processing retry queue item")

	// The queue only redrives failed operations; move the operation
	// back into generation before executing. An operation that is not
	// failed anymore (admin already retried it, or it never existed)
	// is not fatal for the run itself.
	if err := p.ops.RetryBySession(ctx, item.SessionID, SystemActor, model.TriggerRetryQueue); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p.log.Warn().Str("session_id", item.SessionID).Msg("no operation for queued session, executing anyway")
		case errors.Is(err, domain.ErrInvalidTransition):
			p.log.Warn().Err(err).Str("session_id", item.SessionID).Msg("operation no longer failed, executing anyway")
		default:
			p.queue.MarkForRetry(ctx, item.SessionID, err.Error())
			return true, err
		}
	} else {
		p.metrics.RecordRetry(ctx, item.SessionID, item.Tier, item.RetryCount+1)
	}

	ok, execErr := p.executor.Execute(ctx, item.SessionID, item.Tier, item.ProblemStatement)
	p.alerts.RecordRequestOutcome(execErr == nil)

	if execErr != nil {
		p.log.Warn().Err(execErr).Str("session_id", item.SessionID).Msg("retried analysis failed")
		p.queue.MarkForRetry(ctx, item.SessionID, execErr.Error())
		return true, nil
	}
	if !ok {
		// Stopped without failing (paused or cancelled). Cancelled
		// sessions leave the queue; paused ones wait for the operator.
		op, err := p.ops.GetBySession(ctx, item.SessionID)
		if err == nil && op.State == model.StateCancelled {
			p.queue.Cancel(ctx, item.SessionID)
		} else {
			p.queue.MarkForRetry(ctx, item.SessionID, "run stopped before completion")
		}
		return true, nil
	}

	p.queue.MarkCompleted(ctx, item.SessionID)
	p.log.Info().Str("session_id", item.SessionID).Msg("retried analysis succeeded")
	return true, nil
}
