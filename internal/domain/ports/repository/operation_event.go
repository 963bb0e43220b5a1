package repository

import (
	"context"

	"ai-analysis-ops/internal/domain/model"
)

// OperationEventRepository is the append-only event log. Events are
// never mutated or deleted; Append fails loudly when the store is
// unreachable so the caller can fail the whole operation update.
type OperationEventRepository interface {
	Append(ctx context.Context, tx Tx, event *model.OperationEvent) error
	// ListForOperation returns the ordered history (createdAt ascending).
	ListForOperation(ctx context.Context, tx Tx, operationID string) ([]*model.OperationEvent, error)
}
