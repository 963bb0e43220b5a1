package model

import "time"

// QueueStatus is the lifecycle status of a retry queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
	QueueCancelled  QueueStatus = "cancelled"
)

// Retry priorities. Lower numeric value is served first.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

const (
	// DefaultMaxRetries is the tier-independent retry cap for queue items.
	DefaultMaxRetries = 5

	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff.
	RetryBaseDelay = time.Minute
	RetryMaxDelay  = 30 * time.Minute

	// MaxStoredErrorLen caps error strings persisted on queue rows.
	// Alert payloads truncate further (see MaxAlertErrorLen).
	MaxStoredErrorLen = 1000
	MaxAlertErrorLen  = 500
)

// RetryQueueItem is one pending or historical retry attempt record.
// At most one item per sessionId may be pending or processing at a time.
type RetryQueueItem struct {
	ID               int64
	SessionID        string
	Tier             Tier
	ProblemStatement string
	Email            string

	RetryCount int
	MaxRetries int
	Priority   int

	LastError     string
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time

	Status    QueueStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NextRetryDelay computes the exponential backoff delay for the given
// attempt number (1-based): base * 2^(retryCount-1), capped at the max.
func NextRetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := RetryBaseDelay
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= RetryMaxDelay {
			return RetryMaxDelay
		}
	}
	if d > RetryMaxDelay {
		return RetryMaxDelay
	}
	return d
}

// TruncateError caps an error string at n bytes for storage.
func TruncateError(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// QueueStats is a per-status census of the retry queue. All-zero
// counts are also returned when the store is unreachable; dashboards
// must read zeros as "no data", not "empty queue".
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
	Total      int
}
