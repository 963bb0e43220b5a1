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

var _ repository.OperationRepository = (*operationRepo)(nil)

type operationRepo struct {
	pool *pgxpool.Pool
}

func NewOperationRepo(pool *pgxpool.Pool) *operationRepo {
	return &operationRepo{pool: pool}
}

const operationColumns = `
operation_id, session_id, tier, state,
total_parts, completed_parts, current_part,
started_at, last_part_completed_at, completed_at, estimated_completion_at,
last_error, last_error_at, failed_part, retry_count,
triggered_by, admin_notes, created_at, updated_at`

func (r *operationRepo) Save(ctx context.Context, tx repository.Tx, op *model.Operation) error {
	op.UpdatedAt = time.Now()

	const q = `
INSERT INTO operations (
  operation_id, session_id, tier, state,
  total_parts, completed_parts, current_part,
  started_at, last_part_completed_at, completed_at, estimated_completion_at,
  last_error, last_error_at, failed_part, retry_count,
  triggered_by, admin_notes, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (operation_id) DO UPDATE SET
  state = EXCLUDED.state,
  completed_parts = EXCLUDED.completed_parts,
  current_part = EXCLUDED.current_part,
  started_at = EXCLUDED.started_at,
  last_part_completed_at = EXCLUDED.last_part_completed_at,
  completed_at = EXCLUDED.completed_at,
  estimated_completion_at = EXCLUDED.estimated_completion_at,
  last_error = EXCLUDED.last_error,
  last_error_at = EXCLUDED.last_error_at,
  failed_part = EXCLUDED.failed_part,
  retry_count = EXCLUDED.retry_count,
  triggered_by = EXCLUDED.triggered_by,
  admin_notes = EXCLUDED.admin_notes,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		op.OperationID, op.SessionID, op.Tier, op.State,
		op.TotalParts, op.CompletedParts, op.CurrentPart,
		op.StartedAt, op.LastPartCompletedAt, op.CompletedAt, op.EstimatedCompletionAt,
		op.LastError, op.LastErrorAt, op.FailedPart, op.RetryCount,
		op.TriggeredBy, op.AdminNotes, op.CreatedAt, op.UpdatedAt)
	return err
}

func (r *operationRepo) FindByOperationID(ctx context.Context, tx repository.Tx, operationID string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE operation_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, operationID)
	if err != nil {
		return nil, err
	}
	return scanOperation(row)
}

func (r *operationRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.Operation, error) {
	// The newest row wins when a session has historical operations.
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanOperation(row)
}

func (r *operationRepo) ListByState(ctx context.Context, tx repository.Tx, state model.OperationState, limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE state = $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func scanOperation(row pgx.Row) (*model.Operation, error) {
	var op model.Operation
	var tier, state, trigger string
	err := row.Scan(
		&op.OperationID, &op.SessionID, &tier, &state,
		&op.TotalParts, &op.CompletedParts, &op.CurrentPart,
		&op.StartedAt, &op.LastPartCompletedAt, &op.CompletedAt, &op.EstimatedCompletionAt,
		&op.LastError, &op.LastErrorAt, &op.FailedPart, &op.RetryCount,
		&trigger, &op.AdminNotes, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	op.Tier = model.Tier(tier)
	op.State = model.OperationState(state)
	op.TriggeredBy = model.TriggerSource(trigger)
	return &op, nil
}
