package repository

import (
	"context"

	"ai-analysis-ops/internal/domain/model"
)

// AlertLogRepository persists every dispatched admin alert for audit.
// Persistence is best-effort: a write failure must not block dispatch.
type AlertLogRepository interface {
	Save(ctx context.Context, tx Tx, alert *model.AdminAlert) error
	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.AdminAlert, error)
}
