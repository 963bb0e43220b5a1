package repository

import (
	"context"

	"ai-analysis-ops/internal/domain/model"
)

// OperationRepository persists the denormalized operation rows.
// Operations are never deleted; terminal rows are retained for audit.
type OperationRepository interface {
	Save(ctx context.Context, tx Tx, op *model.Operation) error
	FindByOperationID(ctx context.Context, tx Tx, operationID string) (*model.Operation, error)
	FindBySessionID(ctx context.Context, tx Tx, sessionID string) (*model.Operation, error)
	// ListByState returns operations in the given state, oldest first.
	ListByState(ctx context.Context, tx Tx, state model.OperationState, limit int) ([]*model.Operation, error)
}
