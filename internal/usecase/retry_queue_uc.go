package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RetryQueueUseCase = (*retryQueueUC)(nil)

// EnqueueParams describes a failed job to redrive later.
type EnqueueParams struct {
	SessionID        string
	Tier             model.Tier
	ProblemStatement string
	Email            string
	Priority         int // defaults to PriorityMedium
	MaxRetries       int // defaults to DefaultMaxRetries
}

// RetryQueueUseCase manages the durable queue of failed jobs. Its
// methods degrade instead of failing: the queue sits on the job
// failure path and must never crash the surrounding request.
type RetryQueueUseCase interface {
	// Enqueue creates one pending item, immediately eligible. A
	// session with an active entry is not queued twice; that still
	// returns true. Returns false when the parameters are invalid or
	// the store rejected the write.
	Enqueue(ctx context.Context, params EnqueueParams) bool
	// DequeueNext atomically claims the next due item, or returns nil.
	DequeueNext(ctx context.Context) (*model.RetryQueueItem, error)
	// MarkCompleted is idempotent; missing items are not an error.
	MarkCompleted(ctx context.Context, sessionID string)
	// MarkForRetry increments the retry count and either schedules the
	// next attempt (returns true) or, at the cap, permanently fails the
	// item and fires a critical alert (returns false).
	MarkForRetry(ctx context.Context, sessionID, errorMessage string) bool
	// Cancel is best-effort and never errors back to the caller.
	Cancel(ctx context.Context, sessionID string)
	// ReclaimStale requeues processing items abandoned longer than age.
	ReclaimStale(ctx context.Context, age time.Duration) int
	// Stats returns all-zero counts when the store is unreachable.
	Stats(ctx context.Context) model.QueueStats
}

type retryQueueUC struct {
	queue  repository.RetryQueueRepository
	alerts AlertUseCase
	log    *zerolog.Logger
}

func NewRetryQueueUseCase(
	queue repository.RetryQueueRepository,
	alerts AlertUseCase,
	logger *zerolog.Logger,
) *retryQueueUC {
	l := logger.With().Str("component", "RetryQueueUC").Logger()
	return &retryQueueUC{queue: queue, alerts: alerts, log: &l}
}

func (u *retryQueueUC) Enqueue(ctx context.Context, params EnqueueParams) bool {
	if params.SessionID == "" || params.ProblemStatement == "" || !params.Tier.Valid() {
		u.log.Warn().Str("session_id", params.SessionID).Msg("enqueue rejected: missing required fields")
		return false
	}

	// One active item per session: re-adding an already-queued session
	// must not create a duplicate.
	if existing, err := u.queue.FindActiveBySession(ctx, repository.NoTX, params.SessionID); err == nil && existing != nil {
		u.log.Info().Str("session_id", params.SessionID).Msg("session already queued, skipping enqueue")
		return true
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		u.log.Error().Err(err).Str("session_id", params.SessionID).Msg("duplicate check failed")
		return false
	}

	priority := params.Priority
	if priority == 0 {
		priority = model.PriorityMedium
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}

	now := time.Now()
	item := &model.RetryQueueItem{
		SessionID:        params.SessionID,
		Tier:             params.Tier,
		ProblemStatement: params.ProblemStatement,
		Email:            params.Email,
		MaxRetries:       maxRetries,
		Priority:         priority,
		NextRetryAt:      &now,
		Status:           model.QueuePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := u.queue.Insert(ctx, repository.NoTX, item); err != nil {
		u.log.Error().Err(err).Str("session_id", params.SessionID).Msg("failed to enqueue retry item")
		return false
	}

	metrics.IncQueueOp("enqueue")
	u.log.Info().Str("session_id", params.SessionID).Str("tier", string(params.Tier)).Int("priority", priority).Msg("session added to retry queue")
	return true
}

func (u *retryQueueUC) DequeueNext(ctx context.Context) (*model.RetryQueueItem, error) {
	item, err := u.queue.FetchAndMarkProcessing(ctx, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue next: %w", err)
	}
	metrics.IncQueueOp("dequeue")
	return item, nil
}

func (u *retryQueueUC) MarkCompleted(ctx context.Context, sessionID string) {
	if err := u.queue.UpdateStatus(ctx, repository.NoTX, sessionID, model.QueueCompleted); err != nil {
		u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to mark queue item completed")
		return
	}
	metrics.IncQueueOp("complete")
	u.log.Info().Str("session_id", sessionID).Msg("queue item completed")
}

func (u *retryQueueUC) MarkForRetry(ctx context.Context, sessionID, errorMessage string) bool {
	item, err := u.queue.FindBySession(ctx, repository.NoTX, sessionID)
	if err != nil {
		u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load queue item for retry")
		return false
	}

	newCount := item.RetryCount + 1
	truncated := model.TruncateError(errorMessage, model.MaxStoredErrorLen)

	if newCount >= item.MaxRetries {
		if err := u.queue.MarkExhausted(ctx, repository.NoTX, sessionID, newCount, truncated); err != nil {
			u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to mark queue item exhausted")
			return false
		}
		metrics.IncQueueOp("exhausted")
		u.alerts.CriticalError(ctx,
			"Retry Queue Exhausted",
			fmt.Sprintf("Session %s has failed after %d retry attempts. Manual intervention required.", sessionID, newCount),
			map[string]any{
				"sessionId": sessionID,
				"tier":      string(item.Tier),
				"lastError": model.TruncateError(errorMessage, model.MaxAlertErrorLen),
			})
		u.log.Warn().Str("session_id", sessionID).Int("retries", newCount).Msg("session permanently failed, retries exhausted")
		return false
	}

	next := time.Now().Add(model.NextRetryDelay(newCount))
	if err := u.queue.ScheduleRetry(ctx, repository.NoTX, sessionID, newCount, truncated, next); err != nil {
		u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to schedule retry")
		return false
	}
	metrics.IncQueueOp("retry_scheduled")
	u.log.Info().
		Str("session_id", sessionID).
		Int("retry", newCount).
		Int("max_retries", item.MaxRetries).
		Time("next_retry_at", next).
		Msg("session scheduled for retry")
	return true
}

func (u *retryQueueUC) Cancel(ctx context.Context, sessionID string) {
	if err := u.queue.UpdateStatus(ctx, repository.NoTX, sessionID, model.QueueCancelled); err != nil {
		u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to cancel queue item")
		return
	}
	metrics.IncQueueOp("cancel")
	u.log.Info().Str("session_id", sessionID).Msg("queue item cancelled")
}

func (u *retryQueueUC) ReclaimStale(ctx context.Context, age time.Duration) int {
	cutoff := time.Now().Add(-age)
	n, err := u.queue.ReclaimStale(ctx, repository.NoTX, cutoff)
	if err != nil {
		u.log.Error().Err(err).Msg("failed to reclaim stale processing items")
		return 0
	}
	if n > 0 {
		metrics.IncQueueOp("reclaimed")
		u.log.Warn().Int("count", n).Msg("reclaimed stale processing items")
	}
	return n
}

func (u *retryQueueUC) Stats(ctx context.Context) model.QueueStats {
	stats, err := u.queue.Stats(ctx, repository.NoTX)
	if err != nil {
		u.log.Error().Err(err).Msg("failed to read queue stats")
		return model.QueueStats{}
	}
	metrics.SetQueueDepth(stats.Pending, stats.Processing)
	return stats
}
