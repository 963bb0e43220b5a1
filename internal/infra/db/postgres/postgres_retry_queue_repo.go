package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
)

var _ repository.RetryQueueRepository = (*retryQueueRepo)(nil)

type retryQueueRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewRetryQueueRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *retryQueueRepo {
	return &retryQueueRepo{pool: pool, tm: tm}
}

const retryQueueColumns = `
id, session_id, tier, problem_statement, email,
retry_count, max_retries, priority,
last_error, last_attempt_at, next_retry_at,
status, created_at, updated_at`

func (r *retryQueueRepo) Insert(ctx context.Context, tx repository.Tx, item *model.RetryQueueItem) error {
	const q = `
INSERT INTO retry_queue (
  session_id, tier, problem_statement, email,
  retry_count, max_retries, priority,
  last_error, last_attempt_at, next_retry_at,
  status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		item.SessionID, item.Tier, item.ProblemStatement, item.Email,
		item.RetryCount, item.MaxRetries, item.Priority,
		item.LastError, item.LastAttemptAt, item.NextRetryAt,
		item.Status, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return err
	}
	return row.Scan(&item.ID)
}

func (r *retryQueueRepo) FindActiveBySession(ctx context.Context, tx repository.Tx, sessionID string) (*model.RetryQueueItem, error) {
	const q = `SELECT ` + retryQueueColumns + `
FROM retry_queue
WHERE session_id = $1 AND status IN ('pending', 'processing')
ORDER BY created_at DESC
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanRetryItem(row)
}

func (r *retryQueueRepo) FindBySession(ctx context.Context, tx repository.Tx, sessionID string) (*model.RetryQueueItem, error) {
	const q = `SELECT ` + retryQueueColumns + `
FROM retry_queue
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanRetryItem(row)
}

// FetchAndMarkProcessing claims the next due item inside one
// transaction. SKIP LOCKED keeps concurrent replicas from claiming
// the same row.
func (r *retryQueueRepo) FetchAndMarkProcessing(ctx context.Context, now time.Time) (*model.RetryQueueItem, error) {
	var item *model.RetryQueueItem

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `SELECT ` + retryQueueColumns + `
FROM retry_queue
WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
ORDER BY priority ASC, created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery, now)
		if err != nil {
			return err
		}
		fetched, err := scanRetryItem(row)
		if err != nil {
			return err
		}

		const claim = `
UPDATE retry_queue
SET status = 'processing', last_attempt_at = $2, updated_at = $2
WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, claim, fetched.ID, now); err != nil {
			return err
		}
		fetched.Status = model.QueueProcessing
		fetched.LastAttemptAt = &now
		fetched.UpdatedAt = now

		item = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *retryQueueRepo) UpdateStatus(ctx context.Context, tx repository.Tx, sessionID string, status model.QueueStatus) error {
	const q = `
UPDATE retry_queue
SET status = $2, updated_at = NOW()
WHERE session_id = $1 AND status IN ('pending', 'processing');`
	_, err := execSQL(ctx, r.pool, tx, q, sessionID, status)
	return err
}

func (r *retryQueueRepo) ScheduleRetry(ctx context.Context, tx repository.Tx, sessionID string, retryCount int, lastError string, nextRetryAt time.Time) error {
	const q = `
UPDATE retry_queue
SET status = 'pending', retry_count = $2, last_error = $3, next_retry_at = $4, updated_at = NOW()
WHERE session_id = $1 AND status = 'processing';`
	_, err := execSQL(ctx, r.pool, tx, q, sessionID, retryCount, lastError, nextRetryAt)
	return err
}

func (r *retryQueueRepo) MarkExhausted(ctx context.Context, tx repository.Tx, sessionID string, retryCount int, lastError string) error {
	const q = `
UPDATE retry_queue
SET status = 'failed', retry_count = $2, last_error = $3, next_retry_at = NULL, updated_at = NOW()
WHERE session_id = $1 AND status IN ('pending', 'processing');`
	_, err := execSQL(ctx, r.pool, tx, q, sessionID, retryCount, lastError)
	return err
}

func (r *retryQueueRepo) ReclaimStale(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
UPDATE retry_queue
SET status = 'pending', updated_at = NOW()
WHERE status = 'processing' AND last_attempt_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *retryQueueRepo) Stats(ctx context.Context, tx repository.Tx) (model.QueueStats, error) {
	const q = `SELECT status, COUNT(*) FROM retry_queue GROUP BY status;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return model.QueueStats{}, err
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.QueueStats{}, domain.ErrReadDatabaseRow
		}
		switch model.QueueStatus(status) {
		case model.QueuePending:
			stats.Pending = count
		case model.QueueProcessing:
			stats.Processing = count
		case model.QueueCompleted:
			stats.Completed = count
		case model.QueueFailed:
			stats.Failed = count
		case model.QueueCancelled:
			stats.Cancelled = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanRetryItem(row pgx.Row) (*model.RetryQueueItem, error) {
	var item model.RetryQueueItem
	var tier, status string
	err := row.Scan(
		&item.ID, &item.SessionID, &tier, &item.ProblemStatement, &item.Email,
		&item.RetryCount, &item.MaxRetries, &item.Priority,
		&item.LastError, &item.LastAttemptAt, &item.NextRetryAt,
		&status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	item.Tier = model.Tier(tier)
	item.Status = model.QueueStatus(status)
	return &item, nil
}
