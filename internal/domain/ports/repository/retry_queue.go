package repository

import (
	"context"
	"time"

	"ai-analysis-ops/internal/domain/model"
)

// RetryQueueRepository durably holds failed jobs awaiting a backed-off
// re-attempt.
type RetryQueueRepository interface {
	Insert(ctx context.Context, tx Tx, item *model.RetryQueueItem) error
	// FindActiveBySession returns the pending or processing item for a
	// session, or domain.ErrNotFound. Used for duplicate suppression.
	FindActiveBySession(ctx context.Context, tx Tx, sessionID string) (*model.RetryQueueItem, error)
	FindBySession(ctx context.Context, tx Tx, sessionID string) (*model.RetryQueueItem, error)
	// FetchAndMarkProcessing atomically selects the next due pending
	// item (ascending priority, then createdAt), marks it processing and
	// stamps lastAttemptAt, so concurrent processor replicas can never
	// claim the same item. Returns domain.ErrNotFound when none is due.
	FetchAndMarkProcessing(ctx context.Context, now time.Time) (*model.RetryQueueItem, error)
	UpdateStatus(ctx context.Context, tx Tx, sessionID string, status model.QueueStatus) error
	// ScheduleRetry moves the item back to pending with the new retry
	// count, truncated error and nextRetryAt.
	ScheduleRetry(ctx context.Context, tx Tx, sessionID string, retryCount int, lastError string, nextRetryAt time.Time) error
	// MarkExhausted records the permanent failure of an item.
	MarkExhausted(ctx context.Context, tx Tx, sessionID string, retryCount int, lastError string) error
	// ReclaimStale re-queues processing items whose lastAttemptAt is
	// older than the cutoff (abandoned by a dead processor).
	ReclaimStale(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
	Stats(ctx context.Context, tx Tx) (model.QueueStats, error)
}
