package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
)

var _ repository.AlertLogRepository = (*alertLogRepo)(nil)

type alertLogRepo struct {
	pool *pgxpool.Pool
}

func NewAlertLogRepo(pool *pgxpool.Pool) *alertLogRepo {
	return &alertLogRepo{pool: pool}
}

func (r *alertLogRepo) Save(ctx context.Context, tx repository.Tx, alert *model.AdminAlert) error {
	var meta []byte
	if len(alert.Metadata) > 0 {
		b, err := json.Marshal(alert.Metadata)
		if err != nil {
			return fmt.Errorf("marshal alert metadata: %w", err)
		}
		meta = b
	}

	const q = `
INSERT INTO admin_alerts (id, alert_type, title, message, severity, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		alert.ID, alert.Type, alert.Title, alert.Message, alert.Severity, meta, alert.CreatedAt)
	return err
}

func (r *alertLogRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.AdminAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, alert_type, title, message, severity, metadata, created_at
FROM admin_alerts
ORDER BY created_at DESC
LIMIT $1;`

	rows, err := pickRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AdminAlert
	for rows.Next() {
		var a model.AdminAlert
		var alertType, severity string
		var meta []byte
		if err := rows.Scan(&a.ID, &alertType, &a.Title, &a.Message, &severity, &meta, &a.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		a.Type = model.AlertType(alertType)
		a.Severity = model.AlertSeverity(severity)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &a.Metadata)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
