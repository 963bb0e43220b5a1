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

var _ repository.OperationEventRepository = (*operationEventRepo)(nil)

// operationEventRepo is append-only: there is no update or delete path
// on operation_events, in code or in SQL.
type operationEventRepo struct {
	pool *pgxpool.Pool
}

func NewOperationEventRepo(pool *pgxpool.Pool) *operationEventRepo {
	return &operationEventRepo{pool: pool}
}

func (r *operationEventRepo) Append(ctx context.Context, tx repository.Tx, event *model.OperationEvent) error {
	var meta []byte
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		meta = b
	}

	const q = `
INSERT INTO operation_events (
  id, operation_id, session_id, event_type, part_number,
  previous_state, new_state, error_code, error_message,
  duration_ms, token_count, actor_type, actor_id, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	_, err := execSQL(ctx, r.pool, tx, q,
		event.ID, event.OperationID, event.SessionID, event.EventType, event.PartNumber,
		event.PreviousState, event.NewState, event.ErrorCode, event.ErrorMessage,
		event.DurationMs, event.TokenCount, event.ActorType, event.ActorID, meta, event.CreatedAt)
	return err
}

func (r *operationEventRepo) ListForOperation(ctx context.Context, tx repository.Tx, operationID string) ([]*model.OperationEvent, error) {
	// ULID ids sort in creation order; created_at breaks nothing but
	// keeps the intent explicit.
	const q = `
SELECT id, operation_id, session_id, event_type, part_number,
       previous_state, new_state, error_code, error_message,
       duration_ms, token_count, actor_type, actor_id, metadata, created_at
FROM operation_events
WHERE operation_id = $1
ORDER BY created_at ASC, id ASC;`

	rows, err := pickRows(ctx, r.pool, tx, q, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OperationEvent
	for rows.Next() {
		var e model.OperationEvent
		var eventType, prevState, newState, actorType string
		var meta []byte
		err := rows.Scan(
			&e.ID, &e.OperationID, &e.SessionID, &eventType, &e.PartNumber,
			&prevState, &newState, &e.ErrorCode, &e.ErrorMessage,
			&e.DurationMs, &e.TokenCount, &actorType, &e.ActorID, &meta, &e.CreatedAt,
		)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.EventType = model.EventType(eventType)
		e.PreviousState = model.OperationState(prevState)
		e.NewState = model.OperationState(newState)
		e.ActorType = model.ActorType(actorType)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
